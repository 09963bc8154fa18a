// Package metrics exposes Prometheus collectors for the supervision loop.
// Counters are maintained in-process; the /metrics listener is a separate,
// explicitly enabled concern so the supervisor stays off the network by
// default.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	agentStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgesup",
			Subsystem: "agent",
			Name:      "starts_total",
			Help:      "Number of successful agent launches.",
		},
	)
	agentRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgesup",
			Subsystem: "agent",
			Name:      "restarts_total",
			Help:      "Number of relaunches after an exit in continuous mode.",
		},
	)
	agentExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgesup",
			Subsystem: "agent",
			Name:      "exits_total",
			Help:      "Agent exits by classification.",
		}, []string{"class"},
	)
	launchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edgesup",
			Subsystem: "agent",
			Name:      "launch_failures_total",
			Help:      "Number of launch attempts where the binary could not be spawned.",
		},
	)
	agentRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edgesup",
			Subsystem: "agent",
			Name:      "running",
			Help:      "1 while a supervised agent process is alive.",
		},
	)
	validationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgesup",
			Subsystem: "config",
			Name:      "validation_failures_total",
			Help:      "Env file validation failures by failing key (or 'file' when missing).",
		}, []string{"key"},
	)
	logRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgesup",
			Subsystem: "log",
			Name:      "rotations_total",
			Help:      "Log segment rotations by base file name.",
		}, []string{"segment"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgesup",
			Subsystem: "supervisor",
			Name:      "state_transitions_total",
			Help:      "Supervisor state machine transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "edgesup",
			Subsystem: "supervisor",
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		agentStarts, agentRestarts, agentExits, launchFailures, agentRunning,
		validationFailures, logRotations, stateTransitions, currentState,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller owns the HTTP server and the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart() {
	if regOK.Load() {
		agentStarts.Inc()
	}
}
func IncRestart() {
	if regOK.Load() {
		agentRestarts.Inc()
	}
}
func IncExit(class string) {
	if regOK.Load() {
		agentExits.WithLabelValues(class).Inc()
	}
}
func IncLaunchFailure() {
	if regOK.Load() {
		launchFailures.Inc()
	}
}
func SetRunning(up bool) {
	if regOK.Load() {
		if up {
			agentRunning.Set(1)
		} else {
			agentRunning.Set(0)
		}
	}
}
func IncValidationFailure(key string) {
	if regOK.Load() {
		validationFailures.WithLabelValues(key).Inc()
	}
}
func IncRotation(segment string) {
	if regOK.Load() {
		logRotations.WithLabelValues(segment).Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentState.WithLabelValues(state).Set(value)
	}
}
