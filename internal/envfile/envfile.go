// Package envfile parses and validates the agent's KEY=VALUE configuration
// file before any supervised launch. Secrets never reach a log in full:
// every diagnostic goes through Mask.
package envfile

import (
	"bytes"
	"strings"
)

// Required keys, in validation order. The first failing key wins.
const (
	KeyCloudBaseURL = "CLOUD_BASE_URL"
	KeyStoreID      = "STORE_ID"
	KeyEdgeToken    = "EDGE_TOKEN"
)

// RequiredKeys is the fixed validation order for Validate.
var RequiredKeys = []string{KeyCloudBaseURL, KeyStoreID, KeyEdgeToken}

// legacyPrefix is accepted as a fallback for required keys written by older
// setup wizards (DALE_CLOUD_BASE_URL and friends).
const legacyPrefix = "DALE_"

// EmptyMarker is shown in masked diagnostics for empty values. Operator
// consoles on the target fleet read Portuguese.
const EmptyMarker = "(vazio)"

// Record is an ordered key/value view of one parsed env file. It is built
// fresh for every launch attempt and never mutated after validation.
type Record struct {
	keys   []string
	values map[string]string
}

// Parse reads KEY=VALUE lines from data. Blank lines and lines starting
// with # are ignored; lines without = are skipped, not fatal. A UTF-8 BOM
// and CR/CRLF line endings are tolerated (files on the kiosks are edited
// with Windows tools).
func Parse(data []byte) *Record {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	text := strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(string(data))

	rec := &Record{values: make(map[string]string)}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, '=')
		if i < 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if key == "" {
			continue
		}
		rec.set(key, value)
	}
	return rec
}

func (r *Record) set(key, value string) {
	if _, seen := r.values[key]; !seen {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value for key, or "" when absent.
func (r *Record) Get(key string) string { return r.values[key] }

// Lookup resolves key, falling back to its DALE_-prefixed legacy name.
func (r *Record) Lookup(key string) (string, bool) {
	if v, ok := r.values[key]; ok {
		return v, true
	}
	v, ok := r.values[legacyPrefix+key]
	return v, ok
}

// Keys returns the keys in file order.
func (r *Record) Keys() []string { return append([]string(nil), r.keys...) }

// Len reports the number of distinct keys.
func (r *Record) Len() int { return len(r.keys) }

// Environ renders the record as KEY=VALUE pairs in file order, suitable for
// exporting into a child process environment.
func (r *Record) Environ() []string {
	out := make([]string, 0, len(r.keys))
	for _, k := range r.keys {
		out = append(out, k+"="+r.values[k])
	}
	return out
}

// Mask renders a value for diagnostics. Values of 8 characters or fewer are
// shown as-is, longer ones as first 4 + "..." + last 4; the full secret is
// never recoverable from the masked form.
func Mask(v string) string {
	if v == "" {
		return EmptyMarker
	}
	if len(v) <= 8 {
		return v
	}
	return v[:4] + "..." + v[len(v)-4:]
}

// NormalizeToken strips invisible characters that Windows editors and
// copy/paste from the setup wizard tend to smuggle into EDGE_TOKEN, then
// trims surrounding whitespace.
func NormalizeToken(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		switch r {
		case '\uFEFF', '\u200B', '\u200C', '\u200D', '\u2060':
			// BOM, zero-width space/non-joiner/joiner, word joiner
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
