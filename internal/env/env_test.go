package env

import (
	"sort"
	"strings"
	"testing"
)

func lookup(t *testing.T, pairs []string, key string) string {
	t.Helper()
	for _, kv := range pairs {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:]
		}
	}
	return ""
}

func TestMergeLayerOrder(t *testing.T) {
	e := New()
	e.FromOS()
	e.Set("AGENT_MODE", "supervised")
	e.Set("EDGE_TOKEN", "stale-from-supervisor")

	// the validated record layer wins over supervisor vars and OS env
	record := []string{"EDGE_TOKEN=edge-4fd2b8a91c37e5d6a0b1", "STORE_ID=abc"}
	out := e.Merge(record)

	if got := lookup(t, out, "EDGE_TOKEN"); got != "edge-4fd2b8a91c37e5d6a0b1" {
		t.Fatalf("record layer did not win: EDGE_TOKEN=%q", got)
	}
	if got := lookup(t, out, "AGENT_MODE"); got != "supervised" {
		t.Fatalf("supervisor var lost: AGENT_MODE=%q", got)
	}
	if got := lookup(t, out, "STORE_ID"); got != "abc" {
		t.Fatalf("record value missing: STORE_ID=%q", got)
	}
}

func TestMergeLaterLayersOverrideEarlier(t *testing.T) {
	e := New()
	e.env = Var{} // empty base keeps the assertion exact
	out := e.Merge([]string{"A=1", "B=2"}, []string{"A=override"})
	if got := lookup(t, out, "A"); got != "override" {
		t.Fatalf("later layer did not override: A=%q", got)
	}
	if got := lookup(t, out, "B"); got != "2" {
		t.Fatalf("earlier layer value lost: B=%q", got)
	}
}

func TestMergeSkipsMalformedEntries(t *testing.T) {
	e := New()
	e.env = Var{}
	out := e.Merge([]string{"=nokey", "novalue", "OK=yes"})
	if len(out) != 1 || out[0] != "OK=yes" {
		t.Fatalf("malformed entries not skipped: %v", out)
	}
}

func TestMergeExpandsVariables(t *testing.T) {
	e := New()
	e.env = Var{"BASE": "/opt/dale"}
	out := e.Merge([]string{"ENV_FILE=${BASE}/.env"})
	if got := lookup(t, out, "ENV_FILE"); got != "/opt/dale/.env" {
		t.Fatalf("expansion failed: %q", got)
	}
}

func TestMergeOutputSorted(t *testing.T) {
	e := New()
	e.env = Var{}
	out := e.Merge([]string{"Z=1", "A=2", "M=3"})
	if !sort.StringsAreSorted(out) {
		t.Fatalf("merge output not sorted: %v", out)
	}
}

func TestUnsetRemovesVariable(t *testing.T) {
	e := New()
	e.env = Var{}
	e.Set("DROP_ME", "x")
	e.Unset("DROP_ME")
	out := e.Merge()
	if got := lookup(t, out, "DROP_ME"); got != "" {
		t.Fatalf("unset variable survived: %q", got)
	}
}
