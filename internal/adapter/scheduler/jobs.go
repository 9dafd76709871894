package scheduler

import (
	"context"
	"log/slog"
	"time"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/orchestrator"
)

// pendingLister is the narrow store capability the sweep job needs:
// every pending capture across all owners. It's satisfied by
// *store.PGStore but deliberately isn't part of the Store port the
// orchestrator depends on, since that port is always owner-scoped.
type pendingLister interface {
	ListAllPendingCaptures(ctx context.Context) ([]domain.Capture, error)
}

// budgetPruner is the narrow store capability the daily reset job
// needs.
type budgetPruner interface {
	PruneOverlapBudgetHistory(ctx context.Context, before time.Time) error
}

// captureRescheduler is what the sweep job re-drives: one
// orchestrator Run call per pending capture, as if the owner had
// retried their own request.
type captureRescheduler interface {
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
}

// RegisterPendingCaptureSweep adds a ticker job that retries captures
// left pending after a failed inline reschedule attempt (a calendar
// outage, a transient store error) — the owner never asked again, so
// nothing would otherwise re-drive them.
func RegisterPendingCaptureSweep(s *Scheduler, store pendingLister, orc captureRescheduler, interval time.Duration, log *slog.Logger) TickerJobID {
	return s.AddTickerJobWithOptions(interval, func(ctx context.Context) error {
		captures, err := store.ListAllPendingCaptures(ctx)
		if err != nil {
			return err
		}
		for _, c := range captures {
			req := orchestrator.Request{
				CaptureID: c.ID,
				OwnerID:   c.OwnerID,
				Action:    "schedule",
				Now:       time.Now().UTC(),
				TimeZone:  "UTC",
			}
			if _, err := orc.Run(ctx, req); err != nil {
				log.Warn("pending capture sweep: retry failed", "capture_id", c.ID, "err", err)
			}
		}
		return nil
	}, JobOptions{Name: "pending-capture-sweep", OverlapPolicy: SkipIfRunning, Timeout: interval})
}

// RegisterOverlapBudgetReset adds a cron job that prunes overlap_budget
// rows older than the retention window at midnight UTC.
func RegisterOverlapBudgetReset(s *Scheduler, pruner budgetPruner, retention time.Duration, log *slog.Logger) (CronJobID, error) {
	return s.AddCronJobWithOptions("CRON_TZ=UTC 0 0 0 * * *", func(ctx context.Context) error {
		cutoff := time.Now().UTC().Add(-retention)
		if err := pruner.PruneOverlapBudgetHistory(ctx, cutoff); err != nil {
			log.Warn("overlap budget reset failed", "err", err)
			return err
		}
		return nil
	}, JobOptions{Name: "overlap-budget-reset", OverlapPolicy: SkipIfRunning})
}
