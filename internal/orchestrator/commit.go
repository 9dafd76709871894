package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"diaguru-scheduler/internal/audit"
	"diaguru-scheduler/internal/busy"
	"diaguru-scheduler/internal/calendargateway"
	"diaguru-scheduler/internal/constraint"
	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/lateplacement"
	"diaguru-scheduler/internal/priority"
	"diaguru-scheduler/internal/shared"
)

// commitSlot persists a committed placement: calendar event first,
// store second (spec.md §5 "calendar first, store second"), then
// records the audit action. Every commit step sets status=scheduled,
// planned_start/end, scheduled_for, the external event id/tag, plan_id,
// and replaces the capture's chunk set, per spec.md §4.9's closing
// paragraph.
func (o *Orchestrator) commitSlot(ctx context.Context, capture *domain.Capture, slot domain.Window, chunks []domain.Chunk, kind domain.ActionKind, env requestEnv) (*Result, error) {
	before := audit.Snapshot(*capture)
	run := env.ledger.EnsureRun()
	actionID := uuid.NewString()

	start, end := slot.Start, slot.End
	wasScheduled := capture.Status == domain.StatusScheduled

	capture.Status = domain.StatusScheduled
	capture.PlannedStart = &start
	capture.PlannedEnd = &end
	capture.ScheduledFor = &start
	capture.PlanID = &run.ID
	if anyLate(chunks) {
		lateplacement.ClearFreeze(capture)
	}

	score := priority.Score(*capture, env.req.Now, o.weights)
	ev, err := o.calendar.Create(ctx, capture.OwnerID, calendargateway.OwnedEvent(capture.Content, start, end, capture.ID, actionID, score, run.ID))
	if err != nil {
		return nil, toScheduleError(err)
	}
	eventID, etag := ev.ID, ev.ETag
	capture.CalendarEventID = &eventID
	capture.CalendarEventETag = &etag

	err = o.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := o.store.UpdateCapture(ctx, *capture); err != nil {
			return err
		}
		return o.store.ReplaceChunks(ctx, capture.ID, chunks)
	})
	if err != nil {
		return nil, shared.NewScheduleError(500, "store_error", "failed to persist committed placement", nil).Wrap(err)
	}

	actionKind := kind
	if wasScheduled && actionKind == domain.ActionScheduled {
		actionKind = domain.ActionRescheduled
	}
	env.ledger.Record(actionKind, *capture, before)

	return &Result{Commit: &Commit{
		Capture:     *capture,
		PlanSummary: planSummary(env.plan, slot),
		Chunks:      chunks,
		Explanation: explanation(env.plan, anyLate(chunks)),
	}}, nil
}

// commitLate is commitSlot for the late-placement paths (§4.13), which
// always records a "late" reason and tags every chunk late=true.
func (o *Orchestrator) commitLate(ctx context.Context, capture *domain.Capture, slot domain.Window, env requestEnv) (*Result, error) {
	return o.commitSlot(ctx, capture, slot, singleChunk(slot, true), domain.ActionScheduled, env)
}

// reclaimConflicts implements the non-rescheduling half of spec.md
// §4.11's reclaimConflicts: delete each selected owned event from the
// calendar (the adapter itself retries once on precondition-failed),
// mark the capture pending, bump its reschedule count, and emit an
// unscheduled PlanAction. It deliberately stops short of rescheduling
// the victims — that must wait until after the target capture's own
// commit lands, per spec.md §4.9's closing paragraph, so a displaced
// capture is never re-placed against busy intervals that don't yet
// reflect the slot it was just evicted from. Callers run
// rescheduleReclaimed with the returned victims once the target commit
// succeeds.
func (o *Orchestrator) reclaimConflicts(ctx context.Context, ids []string, env requestEnv) ([]domain.Capture, error) {
	victims := make([]domain.Capture, 0, len(ids))
	for _, id := range ids {
		victim, ok := env.ownedByID[id]
		if !ok {
			continue
		}
		before := audit.Snapshot(victim)

		if victim.CalendarEventID != nil {
			etag := ""
			if victim.CalendarEventETag != nil {
				etag = *victim.CalendarEventETag
			}
			if err := o.calendar.Delete(ctx, env.req.OwnerID, *victim.CalendarEventID, etag); err != nil {
				return nil, toScheduleError(err)
			}
		}

		victim.Status = domain.StatusPending
		victim.PlannedStart = nil
		victim.PlannedEnd = nil
		victim.ScheduledFor = nil
		victim.CalendarEventID = nil
		victim.CalendarEventETag = nil
		victim.RescheduleCount++

		if err := o.store.UpdateCapture(ctx, victim); err != nil {
			return nil, shared.NewScheduleError(500, "store_error", "failed to mark displaced capture pending", nil).Wrap(err)
		}
		env.ledger.Record(domain.ActionUnscheduled, victim, before)
		env.ownedByID[id] = victim
		victims = append(victims, victim)
	}
	return victims, nil
}

// rescheduleReclaimed re-enters the cascade (step 6 onward, via
// rescheduleDisplaced) for every just-evicted victim, once the target's
// own commitSlot has landed. The busy intervals it reschedules against
// are seeded with the target's newly claimed slot — buffered the same
// way a calendar event would be — so a victim can never be placed back
// into the window the target now occupies; each victim's own landing
// slot is folded in before the next one is placed, so two victims can't
// collide with each other either. Failures are logged and skipped, not
// propagated: the target's commit has already succeeded and a capture
// left pending is recoverable, but failing the whole request would not
// be.
func (o *Orchestrator) rescheduleReclaimed(ctx context.Context, victims []domain.Capture, targetSlot domain.Window, env requestEnv) {
	if len(victims) == 0 {
		return
	}
	buffer := time.Duration(o.cfg.BufferMinutes) * time.Minute
	intervals := busy.RegisterInterval(env.intervals, domain.BusyInterval{
		Start: targetSlot.Start.Add(-buffer),
		End:   targetSlot.End.Add(buffer),
		Owned: true,
	})

	for _, victim := range victims {
		subEnv := env
		subEnv.intervals = intervals

		rescheduled, err := o.rescheduleDisplaced(ctx, victim, subEnv)
		if err != nil {
			o.log.Warn("orchestrator: failed to reschedule displaced capture", slog.String("capture_id", victim.ID), slog.Any("error", err))
			continue
		}
		if rescheduled == nil {
			continue
		}
		env.ownedByID[victim.ID] = *rescheduled
		if rescheduled.PlannedStart != nil && rescheduled.PlannedEnd != nil {
			intervals = busy.RegisterInterval(intervals, domain.BusyInterval{
				Start: *rescheduled.PlannedStart, End: *rescheduled.PlannedEnd, Owned: true, CaptureID: rescheduled.ID,
			})
		}
	}
}

// rescheduleDisplaced re-enters the cascade at step 6 (plan-candidate
// search onward) for a just-displaced capture, with preemption
// disabled so eviction never chains.
func (o *Orchestrator) rescheduleDisplaced(ctx context.Context, victim domain.Capture, env requestEnv) (*domain.Capture, error) {
	duration := domain.ClampDuration(victim.EstimatedMinutes)
	planResult, err := constraint.ComputeSchedulingPlan(&victim, env.req.Now, env.tzName, duration)
	if err != nil {
		return nil, shared.NewScheduleError(400, "invalid_timezone", "failed to compute scheduling plan for displaced capture", nil).Wrap(err)
	}

	subEnv := env
	subEnv.req.AllowRebalance = false
	subEnv.plan = planResult.Plan
	subEnv.deadline = planResult.Deadline
	subEnv.duration = duration
	subEnv.enforceWorkingWindow = planResult.Plan.Mode != domain.PlanWindow
	subEnv.sched = schedulingWindow(planResult.Plan, planResult.Deadline, env.req.Now, env.sched.End)
	subEnv.opts = env.opts
	subEnv.opts.StartFrom = subEnv.sched.Start
	subEnv.opts.EnforceWorkingWindow = subEnv.enforceWorkingWindow
	subEnv.opts.PreferredTimeOfDay = victim.PreferredTimeOfDay

	res, err := o.scheduleWithoutPreferred(ctx, &victim, subEnv)
	if err != nil {
		return nil, err
	}
	if res.Commit != nil {
		return &res.Commit.Capture, nil
	}
	return nil, nil
}

func anyLate(chunks []domain.Chunk) bool {
	for _, c := range chunks {
		if c.Late {
			return true
		}
	}
	return false
}

func planSummary(plan domain.SchedulingPlan, slot domain.Window) string {
	return fmt.Sprintf("%s: %s – %s", plan.Mode, slot.Start.Format("2006-01-02T15:04"), slot.End.Format("2006-01-02T15:04"))
}

func explanation(plan domain.SchedulingPlan, late bool) string {
	if late {
		return "placed after the deadline with explicit authorization"
	}
	switch plan.Mode {
	case domain.PlanStart:
		return "committed at the requested start time"
	case domain.PlanWindow:
		return "committed inside the capture's window"
	case domain.PlanDeadline:
		return "committed ahead of the deadline"
	default:
		return "committed at the earliest available slot"
	}
}
