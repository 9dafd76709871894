package orchestrator

import (
	"context"

	"diaguru-scheduler/internal/audit"
	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/shared"
)

// completeCapture implements the terminal transition from spec.md §3's
// Lifecycle note: "to completed on user action". It bypasses the
// §4.9/§4.10 precedence chain entirely — completion is not a
// scheduling decision — deletes the capture's calendar event if one
// exists, and persists the terminal state.
func (o *Orchestrator) completeCapture(ctx context.Context, req Request, capture *domain.Capture, ledger *audit.Ledger) (*Result, error) {
	before := audit.Snapshot(*capture)

	if capture.CalendarEventID != nil {
		etag := ""
		if capture.CalendarEventETag != nil {
			etag = *capture.CalendarEventETag
		}
		if err := o.calendar.Delete(ctx, req.OwnerID, *capture.CalendarEventID, etag); err != nil {
			return nil, toScheduleError(err)
		}
	}

	capture.Status = domain.StatusCompleted
	capture.CalendarEventID = nil
	capture.CalendarEventETag = nil

	if err := o.store.UpdateCapture(ctx, *capture); err != nil {
		return nil, shared.NewScheduleError(500, "store_error", "failed to persist completed capture", nil).Wrap(err)
	}

	ledger.Record(domain.ActionCompleted, *capture, before)

	return &Result{Commit: &Commit{
		Capture:     *capture,
		PlanSummary: "completed",
		Explanation: "marked complete by user action",
	}}, nil
}
