package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MinTokenLength is the shortest EDGE_TOKEN the backend ever issues; anything
// shorter is a truncated paste, not a credential.
const MinTokenLength = 20

// ErrNotFound reports a missing env file. Recoverable by the operator:
// copy the template next to the binary and fill it in.
var ErrNotFound = errors.New("env file not found")

// InvalidFieldError reports a required key that is absent, empty, or still a
// placeholder. Key names which one; Reason is safe to print.
type InvalidFieldError struct {
	Key    string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("invalid required field %s: %s", e.Key, e.Reason)
}

// MalformedIdentifierError reports a STORE_ID that is not a UUID. Masked
// carries the masked value only.
type MalformedIdentifierError struct {
	Key    string
	Masked string
}

func (e *MalformedIdentifierError) Error() string {
	return fmt.Sprintf("malformed identifier %s: %s is not a valid UUID", e.Key, e.Masked)
}

// Validate reads and validates the env file at path. It is a single
// synchronous pass: one file read, no retry, no mutation of the file.
// On success the returned record carries normalized values (trailing slash
// trimmed from CLOUD_BASE_URL, invisible characters stripped from
// EDGE_TOKEN) under their canonical keys.
func Validate(path string) (*Record, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (copy .env.example to .env and fill in the real values)", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}

	rec := Parse(data)

	// Normalize once, then emit one masked diagnostic per required key
	// before any check can fail.
	normalized := make(map[string]string, len(RequiredKeys))
	for _, key := range RequiredKeys {
		raw, _ := rec.Lookup(key)
		v := strings.TrimSpace(raw)
		if key == KeyEdgeToken {
			v = NormalizeToken(raw)
		}
		normalized[key] = v
		slog.Info("Config field", "key", key, "value", Mask(v), "len", len(v))
	}

	for _, key := range RequiredKeys {
		v := normalized[key]
		if v == "" {
			return nil, &InvalidFieldError{Key: key, Reason: "missing or empty"}
		}
		if IsPlaceholder(v) {
			return nil, &InvalidFieldError{Key: key, Reason: "placeholder value, fill in the real one"}
		}
		switch key {
		case KeyCloudBaseURL:
			v = strings.TrimRight(v, "/")
		case KeyStoreID:
			if _, err := uuid.Parse(v); err != nil {
				return nil, &MalformedIdentifierError{Key: key, Masked: Mask(v)}
			}
		case KeyEdgeToken:
			if len(v) < MinTokenLength {
				return nil, &InvalidFieldError{Key: key, Reason: fmt.Sprintf("too short (%d chars, need at least %d)", len(v), MinTokenLength)}
			}
		}
		rec.set(key, v)
	}
	return rec, nil
}

// IsPlaceholder reports whether a value still looks like template text:
// angle brackets from "<your-token-here>" style stubs, or the literal
// "changeme" in any case.
func IsPlaceholder(v string) bool {
	if strings.ContainsAny(v, "<>") {
		return true
	}
	return strings.Contains(strings.ToLower(v), "changeme")
}
