package domain

import (
	"strconv"
	"time"
)

// ActionKind classifies a PlanAction (spec.md §3/§4.15).
type ActionKind string

const (
	ActionScheduled   ActionKind = "scheduled"
	ActionRescheduled ActionKind = "rescheduled"
	ActionUnscheduled ActionKind = "unscheduled"
	ActionCompleted   ActionKind = "completed"
)

// CaptureSnapshot is the subset of capture state the audit ledger
// records before and after a mutation (spec.md §4.15).
type CaptureSnapshot struct {
	Status            CaptureStatus
	PlannedStart      *time.Time
	PlannedEnd        *time.Time
	CalendarEventID   *string
	CalendarEventETag *string
	FreezeUntil       *time.Time
	PlanID            *string
}

// PlanAction records the before/after snapshot of one capture mutation
// within a PlanRun.
type PlanAction struct {
	ID            string
	PlanID        string
	ActionID      string
	CaptureID     string
	CaptureContent string
	Kind          ActionKind
	Before        CaptureSnapshot
	After         CaptureSnapshot
	CreatedAt     time.Time
}

// PlanRun is the audit scope of one scheduling request (spec.md §3/§4.15).
type PlanRun struct {
	ID        string
	UserID    string
	Summary   string
	CreatedAt time.Time
	Actions   []PlanAction
}

// Summarize computes the "scheduled:x moved:y unscheduled:z" string
// persisted on finalize.
func (r *PlanRun) Summarize() string {
	var scheduled, moved, unscheduled, completed int
	for _, a := range r.Actions {
		switch a.Kind {
		case ActionScheduled:
			scheduled++
		case ActionRescheduled:
			moved++
		case ActionUnscheduled:
			unscheduled++
		case ActionCompleted:
			completed++
		}
	}
	return formatSummary(scheduled, moved, unscheduled, completed)
}

func formatSummary(scheduled, moved, unscheduled, completed int) string {
	s := "scheduled:" + strconv.Itoa(scheduled) + " moved:" + strconv.Itoa(moved) + " unscheduled:" + strconv.Itoa(unscheduled)
	if completed > 0 {
		s += " completed:" + strconv.Itoa(completed)
	}
	return s
}
