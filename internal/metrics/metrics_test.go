package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	// Exercise helpers; they should work only after Register
	IncStart()
	IncStart()
	IncRestart()
	IncExit("crash")
	IncExit("clean")
	IncLaunchFailure()
	SetRunning(true)
	IncValidationFailure("STORE_ID")
	IncRotation("agent.log")
	RecordStateTransition("exited", "restarting")
	SetCurrentState("running", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"edgesup_agent_starts_total":                 false,
		"edgesup_agent_restarts_total":               false,
		"edgesup_agent_exits_total":                  false,
		"edgesup_agent_launch_failures_total":        false,
		"edgesup_agent_running":                      false,
		"edgesup_config_validation_failures_total":   false,
		"edgesup_log_rotations_total":                false,
		"edgesup_supervisor_state_transitions_total": false,
		"edgesup_supervisor_current_state":           false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestExitClassesAreSeparateSeries(t *testing.T) {
	// Reset the gate so this test registers into its own registry
	// regardless of what ran before it.
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	IncExit("auth")
	IncExit("auth")
	IncExit("network")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "edgesup_agent_exits_total" {
			continue
		}
		classes := make(map[string]float64)
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "class" {
					classes[lp.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
		if classes["auth"] < 2 || classes["network"] < 1 {
			t.Fatalf("unexpected class counts: %v", classes)
		}
		return
	}
	t.Fatalf("exits metric not found")
}

func TestHandlerServesMetrics(t *testing.T) {
	// Handler serves the DefaultGatherer, so the collectors must be in the
	// default registry for this test.
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "edgesup_agent_starts_total") {
		t.Fatalf("exposition missing edgesup series")
	}
}
