// Package audit implements spec.md §4.15: accumulating before/after
// snapshots per mutation and persisting a per-run summary.
package audit

import (
	"time"

	"github.com/google/uuid"

	"diaguru-scheduler/internal/domain"
)

// Ledger accumulates a single PlanRun's actions in memory across a
// request, creating the run lazily on first mutation per spec.md §4.15.
type Ledger struct {
	userID string
	run    *domain.PlanRun
	now    func() time.Time
}

// New returns a Ledger for userID. now is injected so callers can pin
// a single reference instant for the whole request.
func New(userID string, now func() time.Time) *Ledger {
	return &Ledger{userID: userID, now: now}
}

// Run returns the lazily-created PlanRun, or nil if no mutation has
// happened yet.
func (l *Ledger) Run() *domain.PlanRun {
	return l.run
}

// EnsureRun creates the PlanRun if no mutation has happened yet and
// returns it. Callers that need a stable plan id before the first
// Record call (e.g. to stamp a calendar event's plan_id property) use
// this instead of relying on Record's lazy creation.
func (l *Ledger) EnsureRun() *domain.PlanRun {
	return l.ensureRun()
}

func (l *Ledger) ensureRun() *domain.PlanRun {
	if l.run == nil {
		l.run = &domain.PlanRun{
			ID:        uuid.NewString(),
			UserID:    l.userID,
			CreatedAt: l.now(),
		}
	}
	return l.run
}

// Record appends a PlanAction of the given kind with before/after
// snapshots of capture. Creates the PlanRun on first call.
func (l *Ledger) Record(kind domain.ActionKind, capture domain.Capture, before domain.CaptureSnapshot) domain.PlanAction {
	run := l.ensureRun()
	action := domain.PlanAction{
		ID:             uuid.NewString(),
		PlanID:         run.ID,
		ActionID:       uuid.NewString(),
		CaptureID:      capture.ID,
		CaptureContent: capture.Content,
		Kind:           kind,
		Before:         before,
		After:          snapshot(capture),
		CreatedAt:      l.now(),
	}
	run.Actions = append(run.Actions, action)
	return action
}

// snapshot captures the subset of capture state the ledger tracks.
func snapshot(c domain.Capture) domain.CaptureSnapshot {
	return domain.CaptureSnapshot{
		Status:            c.Status,
		PlannedStart:      c.PlannedStart,
		PlannedEnd:        c.PlannedEnd,
		CalendarEventID:   c.CalendarEventID,
		CalendarEventETag: c.CalendarEventETag,
		FreezeUntil:       c.FreezeUntil,
		PlanID:            c.PlanID,
	}
}

// Snapshot is exported so orchestrator callers can take a "before" view
// without reaching into domain internals.
func Snapshot(c domain.Capture) domain.CaptureSnapshot {
	return snapshot(c)
}

// Finalize computes the run's summary string. The caller is
// responsible for persisting the run and its actions in a single
// batch, per spec.md §4.15.
func (l *Ledger) Finalize() *domain.PlanRun {
	if l.run == nil {
		return nil
	}
	l.run.Summary = l.run.Summarize()
	return l.run
}
