// Package notify provides event notification for provisioning runs.
package notify

import (
	"context"
	"time"
)

// EventType identifies what happened during a provisioning run.
type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventHostProvisioned EventType = "host_provisioned"
	EventHostFailed      EventType = "host_failed"
	EventRunComplete     EventType = "run_complete"
)

// Event represents a notification event. Host-scoped fields are empty on
// run-scoped events and vice versa.
type Event struct {
	Type      EventType       `json:"type"`
	Host      string          `json:"host,omitempty"`
	Status    string          `json:"status,omitempty"`
	Agents    map[string]bool `json:"agents,omitempty"`
	Error     string          `json:"error,omitempty"`
	Total     int             `json:"total,omitempty"`
	Succeeded int             `json:"succeeded,omitempty"`
	Failed    int             `json:"failed,omitempty"`
	Skipped   int             `json:"skipped,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notifier sends events to an external system.
type Notifier interface {
	Send(ctx context.Context, event Event) error
	Name() string
}

// Logger is a minimal logging interface to avoid importing the logging package.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Multi fans out events to multiple notifiers. The notifier set is fixed at
// construction. It never returns errors; sink failures are logged and do not
// block the run.
type Multi struct {
	notifiers []Notifier
	log       Logger
}

// NewMulti creates a dispatcher from the given notifiers.
func NewMulti(log Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, log: log}
}

// Notify sends an event to all registered notifiers.
// Returns true if at least one notifier succeeded (or none are configured).
func (m *Multi) Notify(ctx context.Context, event Event) bool {
	if len(m.notifiers) == 0 {
		return true
	}

	anyOK := false
	for _, n := range m.notifiers {
		if err := n.Send(ctx, event); err != nil {
			m.log.Error("notification failed",
				"provider", n.Name(),
				"event", string(event.Type),
				"host", event.Host,
				"error", err.Error(),
			)
		} else {
			anyOK = true
		}
	}
	return anyOK
}
