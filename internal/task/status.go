package task

import "fmt"

// Status is the lifecycle state of one provisioning task.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusSkipped Status = "SKIPPED"
)

// canTransition reports whether moving from s to next is a legal lifecycle
// step. Legal transitions: Pending→Skipped, Pending→Running,
// Running→Success, Running→Failure.
func (s Status) canTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusSkipped || next == StatusRunning
	case StatusRunning:
		return next == StatusSuccess || next == StatusFailure
	case StatusSuccess, StatusFailure, StatusSkipped:
		return false
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusSkipped:
		return true
	}
	return false
}

// transition moves the task to next, rejecting illegal steps.
func (t *Task) transition(next Status) error {
	if !t.status.canTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s for host %s", t.status, next, t.Host)
	}
	t.status = next
	return nil
}
