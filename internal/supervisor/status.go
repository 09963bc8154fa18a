package supervisor

import "time"

// State machine:
// Idle -> Starting -> Running -> Exited -> (Restarting -> Starting) | Terminal
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateExited
	StateRestarting
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateRestarting:
		return "restarting"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the current or most recent agent run. A new run
// replaces the previous one on every relaunch.
type Status struct {
	State     State
	Running   bool
	PID       int
	Argv      []string
	StartedAt time.Time
	StoppedAt time.Time
	ExitCode  int
	Restarts  int
}
