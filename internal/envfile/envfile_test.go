package envfile

import (
	"strings"
	"testing"
)

func TestParseBasicLines(t *testing.T) {
	data := []byte("# comment\n\nCLOUD_BASE_URL=https://cloud.example.com\nSTORE_ID = 0f61a8a0-9014-4a3f-a3c5-4bba2680c4a8\nnot a pair\nEDGE_TOKEN=abc=def==\n")
	rec := Parse(data)
	if rec.Len() != 3 {
		t.Fatalf("expected 3 keys, got %d: %+v", rec.Len(), rec.Keys())
	}
	if got := rec.Get("CLOUD_BASE_URL"); got != "https://cloud.example.com" {
		t.Fatalf("CLOUD_BASE_URL = %q", got)
	}
	if got := rec.Get("STORE_ID"); got != "0f61a8a0-9014-4a3f-a3c5-4bba2680c4a8" {
		t.Fatalf("STORE_ID = %q", got)
	}
	// value split on the FIRST '=' only
	if got := rec.Get("EDGE_TOKEN"); got != "abc=def==" {
		t.Fatalf("EDGE_TOKEN = %q", got)
	}
}

func TestParsePreservesOrder(t *testing.T) {
	rec := Parse([]byte("B=2\nA=1\nC=3\nA=override\n"))
	keys := rec.Keys()
	if len(keys) != 3 || keys[0] != "B" || keys[1] != "A" || keys[2] != "C" {
		t.Fatalf("unexpected key order: %v", keys)
	}
	if rec.Get("A") != "override" {
		t.Fatalf("later assignment should win, got %q", rec.Get("A"))
	}
}

func TestParseToleratesBOMAndCRLF(t *testing.T) {
	data := []byte("\xef\xbb\xbfA=1\r\nB=2\rC=3\n")
	rec := Parse(data)
	if rec.Get("A") != "1" || rec.Get("B") != "2" || rec.Get("C") != "3" {
		t.Fatalf("unexpected values: %v", rec.Environ())
	}
	if rec.Keys()[0] != "A" {
		t.Fatalf("BOM leaked into first key: %q", rec.Keys()[0])
	}
}

func TestLookupLegacyFallback(t *testing.T) {
	rec := Parse([]byte("DALE_STORE_ID=legacy-value\n"))
	v, ok := rec.Lookup("STORE_ID")
	if !ok || v != "legacy-value" {
		t.Fatalf("legacy lookup failed: %q ok=%v", v, ok)
	}
	rec = Parse([]byte("STORE_ID=canonical\nDALE_STORE_ID=legacy\n"))
	if v, _ := rec.Lookup("STORE_ID"); v != "canonical" {
		t.Fatalf("canonical key must win over legacy, got %q", v)
	}
}

func TestEnvironRendersFileOrder(t *testing.T) {
	rec := Parse([]byte("B=2\nA=1\n"))
	env := rec.Environ()
	if len(env) != 2 || env[0] != "B=2" || env[1] != "A=1" {
		t.Fatalf("unexpected environ: %v", env)
	}
}

func TestMask(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", EmptyMarker},
		{"short", "short"},
		{"12345678", "12345678"},
		{"123456789", "1234...6789"},
		{"sk_live_a7f3b2c1d4e5", "sk_l...d4e5"},
	}
	for _, c := range cases {
		if got := Mask(c.in); got != c.want {
			t.Fatalf("Mask(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMaskNeverRevealsLongSecrets(t *testing.T) {
	secret := "abcdefghijklmnopqrstuvwxyz0123456789"
	masked := Mask(secret)
	if strings.Contains(masked, secret) {
		t.Fatalf("masked output contains the full secret")
	}
	if !strings.HasPrefix(masked, secret[:4]) || !strings.HasSuffix(masked, secret[len(secret)-4:]) {
		t.Fatalf("masked output %q lost its anchors", masked)
	}
	// masking is stable when applied twice (a masked value stays masked)
	if Mask(masked) == secret {
		t.Fatalf("double masking reconstructed the secret")
	}
}

func TestNormalizeToken(t *testing.T) {
	in := "\uFEFF  tok\u200Ben-with-invisibles\u2060  "
	if got := NormalizeToken(in); got != "token-with-invisibles" {
		t.Fatalf("NormalizeToken = %q", got)
	}
}
