package release

import (
	"fmt"
	"path"
	"strings"
)

// Variant selects which env artifact ships in a bundle. The two are
// mutually exclusive: a bundle carries either the template for the operator
// to copy, or a placeholder .env the setup wizard rewrites in place.
type Variant string

const (
	VariantTemplate    Variant = "template"
	VariantPlaceholder Variant = "placeholder"
)

// ParseVariant maps a CLI flag value onto a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantTemplate, VariantPlaceholder:
		return Variant(s), nil
	}
	return "", fmt.Errorf("unknown variant %q (want template or placeholder)", s)
}

const (
	agentBinary    = "dalevision-edge-agent"
	supervisorName = "edgesup"
	envName        = ".env"
	envTemplate    = ".env.example"
	logsEntry      = "logs/"
)

// Manifest names what a distributable artifact must contain (Required) and
// what must never appear in it (Forbidden). Names use forward slashes; a
// trailing slash marks a directory entry. Verification fails closed: the
// archive's member list must match Required exactly.
type Manifest struct {
	Required  []string
	Forbidden []string
	// PlaceholderCheck names staged env files whose identity keys must
	// still be placeholders or empty. A filled-in STORE_ID or EDGE_TOKEN
	// in one of these is a leaked credential, not a packaging choice.
	PlaceholderCheck []string
}

// DefaultManifest is the bundle layout shipped to kiosks: both binaries,
// the variant's env artifact and an empty logs directory. Live log names
// are forbidden in both variants so a bundle built from a used install
// never carries operational data.
func DefaultManifest(v Variant) (Manifest, error) {
	switch v {
	case VariantTemplate:
		return Manifest{
			Required:         []string{agentBinary, supervisorName, envTemplate, logsEntry},
			Forbidden:        []string{envName, "logs/agent.log", "logs/agent.out.log"},
			PlaceholderCheck: []string{envTemplate},
		}, nil
	case VariantPlaceholder:
		return Manifest{
			Required:         []string{agentBinary, supervisorName, envName, logsEntry},
			Forbidden:        []string{envTemplate, "logs/agent.log", "logs/agent.out.log"},
			PlaceholderCheck: []string{envName},
		}, nil
	}
	return Manifest{}, fmt.Errorf("unknown variant %q", v)
}

// Validate checks the manifest's own invariants before any file is touched.
func (m Manifest) Validate() error {
	if len(m.Required) == 0 {
		return fmt.Errorf("manifest has no required files")
	}
	seen := make(map[string]bool, len(m.Required))
	for _, name := range m.Required {
		if err := checkName(name); err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("required name listed twice: %s", name)
		}
		seen[name] = true
	}
	for _, name := range m.Forbidden {
		if err := checkName(name); err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("name both required and forbidden: %s", name)
		}
	}
	return nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("empty manifest name")
	}
	clean := path.Clean(strings.TrimSuffix(name, "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(name, `\`) {
		return fmt.Errorf("manifest name escapes the bundle: %s", name)
	}
	return nil
}

func isDirName(name string) bool { return strings.HasSuffix(name, "/") }
