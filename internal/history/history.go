// Package history records supervision lifecycle events so an operator can
// reconstruct what the unattended kiosk did between visits.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart         EventType = "start"
	EventExit          EventType = "exit"
	EventLaunchFailure EventType = "launch_failure"
)

// Event represents one supervision lifecycle event.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	PID        int       `json:"pid"`
	ExitCode   int       `json:"exit_code"`
	Class      string    `json:"class"`  // clean|crash|auth|network|launch|stopped
	Detail     string    `json:"detail"` // launch error text, when any
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
