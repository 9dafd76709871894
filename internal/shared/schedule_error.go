package shared

import "fmt"

// ScheduleError is the structured failure the scheduler orchestrator
// returns to the HTTP layer. It carries enough detail for the client to
// render spec.md's 409 payload (reason, deadline, capacity figures) or
// any of the other documented error statuses.
type ScheduleError struct {
	Status  int
	Reason  string
	Message string
	Details map[string]any
	Kind    Kind
	cause   error
}

// Error implements the error interface.
func (e *ScheduleError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("schedule error: status=%d reason=%s", e.Status, e.Reason)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/As.
func (e *ScheduleError) Unwrap() error {
	return e.cause
}

// NewScheduleError builds a ScheduleError and classifies it with the
// shared Kind model so existing shared.KindOf/Is* helpers keep working.
func NewScheduleError(status int, reason, message string, details map[string]any) *ScheduleError {
	return &ScheduleError{
		Status:  status,
		Reason:  reason,
		Message: message,
		Details: details,
		Kind:    kindForStatus(status),
	}
}

// Wrap attaches a cause to a ScheduleError for errors.Is/As chains.
func (e *ScheduleError) Wrap(cause error) *ScheduleError {
	e.cause = cause
	return e
}

func kindForStatus(status int) Kind {
	switch status {
	case 400:
		return KindValidation
	case 401:
		return KindUnauthorized
	case 403:
		return KindForbidden
	case 404:
		return KindNotFound
	case 409:
		return KindConflict
	case 412:
		return KindConflict
	case 502:
		return KindDependencyFailure
	default:
		return KindInternal
	}
}

// Common reason codes used in 409 payloads (spec.md §6).
const (
	ReasonSlotExceedsDeadline = "slot_exceeds_deadline"
	ReasonNoSlot              = "no_slot"
)
