package orchestrator

import (
	"context"
	"fmt"
	"time"

	"diaguru-scheduler/internal/advisor"
	"diaguru-scheduler/internal/busy"
	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/overlap"
	"diaguru-scheduler/internal/preemption"
	"diaguru-scheduler/internal/search"
	"diaguru-scheduler/internal/tz"
)

// preferredSlotPath implements spec.md §4.10: commit the preferred
// slot outright, or try overlap-commit, then preemption-commit, else
// fall back to a preferred_conflict decision. This path is terminal —
// it never falls through to the plan-candidate cascade.
func (o *Orchestrator) preferredSlotPath(ctx context.Context, capture *domain.Capture, preferred domain.Window, env requestEnv) (*Result, error) {
	req := env.req

	withinWorkingHours := true
	if env.enforceWorkingWindow {
		ok, err := tz.WithinWorkingWindow(env.tzName, preferred.Start, preferred.End, env.w)
		if err == nil {
			withinWorkingHours = ok
		}
	}
	withinPlanWindow := !preferred.Start.Before(env.sched.Start) && !preferred.End.After(env.sched.End)

	external, owned := busy.Overlapping(preferred.Start, preferred.End, env.intervals)

	if withinWorkingHours && withinPlanWindow && len(external) == 0 && len(owned) == 0 {
		return o.commitSlot(ctx, capture, preferred, singleChunk(preferred, false), domain.ActionScheduled, env)
	}

	if req.AllowOverlap && len(external) == 0 && len(owned) > 0 {
		if res := o.tryOverlapCommit(ctx, capture, preferred, owned, env); res != nil {
			return res, nil
		}
	}

	if req.AllowRebalance && len(external) == 0 && len(owned) > 0 {
		if res, err := o.tryPreemptionCommit(ctx, capture, preferred, owned, env); err != nil {
			return nil, err
		} else if res != nil {
			return res, nil
		}
	}

	suggestion, found := search.FindNextAvailableSlot(env.intervals, env.duration, env.opts)
	var sugPtr *domain.Window
	if found {
		sugPtr = &suggestion
	}
	decision := o.buildConflictDecision(ctx, *capture, preferred, external, owned, sugPtr, env.tzName)
	return &Result{Conflict: &decision}, nil
}

// tryOverlapCommit attempts an overlap-commit per spec.md §4.12.
// Returns nil if the overlap evaluator declines.
func (o *Orchestrator) tryOverlapCommit(ctx context.Context, capture *domain.Capture, slot domain.Window, owned []domain.BusyInterval, env requestEnv) *Result {
	participants := distinctParticipants(owned, env.ownedByID)
	cfg := overlap.Config{
		Enabled:                o.cfg.OverlapEnabled,
		MaxConcurrency:         o.cfg.OverlapMaxConcurrency,
		PerTaskOverlapFraction: o.cfg.OverlapPerTaskFraction,
		DailyBudgetMinutes:     o.cfg.OverlapDailyBudgetMinutes,
		SoftCostPerMinute:      o.cfg.OverlapSoftCostPerMinute,
	}
	usage := overlap.NewUsage()
	decision := overlap.Evaluate(cfg, usage, *capture, participants, slot, env.req.Now, o.perMinute)
	if !decision.Allowed {
		return nil
	}
	usage.Record(slot)
	o.recordOverlapUsage(ctx, env.req.OwnerID, slot)
	primeIdx := overlap.PrimeParticipant(*capture, participants, env.req.Now, o.perMinute)
	chunk := domain.Chunk{Start: slot.Start, End: slot.End, Overlapped: true, Prime: primeIdx == -1}

	res, err := o.commitSlot(ctx, capture, slot, []domain.Chunk{chunk}, domain.ActionScheduled, env)
	if err != nil || res.Commit == nil {
		return nil
	}
	res.Commit.Overlap = &OverlapOutcome{Prime: chunk.Prime}
	return res
}

// tryPreemptionCommit attempts a preemption-commit per spec.md §4.11,
// displacing the conflicting owned captures when the target outranks
// every one of them and none is frozen or inside the stability window.
func (o *Orchestrator) tryPreemptionCommit(ctx context.Context, capture *domain.Capture, slot domain.Window, owned []domain.BusyInterval, env requestEnv) (*Result, error) {
	stabilityWindow := time.Duration(o.cfg.StabilityWindowMinutes) * time.Minute
	planModeDeadline := env.plan.Mode == domain.PlanDeadline

	candidateIDs := make([]string, 0, len(owned))
	for _, iv := range owned {
		oc, ok := env.ownedByID[iv.CaptureID]
		if !ok {
			return nil, nil
		}
		if !preemption.IsMovable(oc, env.req.Now, stabilityWindow, planModeDeadline) {
			return nil, nil
		}
		if o.perMinute(oc, env.req.Now) >= o.perMinute(*capture, env.req.Now) {
			return nil, nil
		}
		candidateIDs = append(candidateIDs, oc.ID)
	}
	if len(candidateIDs) == 0 {
		return nil, nil
	}

	combo, ok := preemption.SelectMinimalPreemptionSet(preemption.SelectionInput{
		Slot: slot, Events: env.events, CandidateIDs: candidateIDs, AllowCompressedBuffer: true, Now: env.req.Now,
	})
	if !ok {
		return nil, nil
	}

	displacements := buildDisplacements(combo, env.ownedByID, slot, env.events)
	gain := preemption.EvaluatePreemptionNetGain(preemption.NetGainInput{
		Target: *capture, Displacements: displacements, MinutesClaimed: slot.Duration().Minutes(),
		ReferenceNow: env.req.Now, PerMinute: o.perMinute, OverlapSoftCost: o.overlapSoftCost,
	}, o.thresholds())
	if !gain.Allowed {
		return nil, nil
	}

	victims, err := o.reclaimConflicts(ctx, combo, env)
	if err != nil {
		return nil, err
	}
	res, err := o.commitSlot(ctx, capture, slot, singleChunk(slot, false), domain.ActionScheduled, env)
	if err != nil {
		return nil, err
	}
	o.rescheduleReclaimed(ctx, victims, slot, env)
	return res, nil
}

// overlapSoftCost is the preemption.NetGainInput.OverlapSoftCost
// callback, per spec.md §4.11's cost formula: a displaced capture that
// was itself sitting in an overlapped (co-scheduled) slot also carries
// the overlap soft cost of the minutes it's claiming, same rate as the
// overlap-commit path (spec.md §4.12) charges.
func (o *Orchestrator) overlapSoftCost(d preemption.Displacement) float64 {
	if !d.Overlapped {
		return 0
	}
	return o.cfg.OverlapSoftCostPerMinute * d.MinutesClaimed
}

func (o *Orchestrator) thresholds() preemption.Thresholds {
	return preemption.Thresholds{
		NetGainFloor:        o.cfg.PreemptionNetGainFloor,
		PerMinuteGainFloor:  o.cfg.PreemptionPerMinuteGainFloor,
		MaxDisplacedMinutes: o.cfg.PreemptionMaxDisplacedMinutes,
		MaxDisplacedTasks:   o.cfg.PreemptionMaxDisplacedTasks,
	}
}

// distinctParticipants returns the distinct owned captures touched by
// intervals, in first-seen order.
func distinctParticipants(owned []domain.BusyInterval, ownedByID map[string]domain.Capture) []domain.Capture {
	seen := map[string]bool{}
	out := make([]domain.Capture, 0, len(owned))
	for _, iv := range owned {
		if seen[iv.CaptureID] {
			continue
		}
		seen[iv.CaptureID] = true
		if c, ok := ownedByID[iv.CaptureID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// buildDisplacements computes, for each selected capture id, the
// minutes of slot its current placement claims.
func buildDisplacements(ids []string, ownedByID map[string]domain.Capture, slot domain.Window, events []domain.CalendarEvent) []preemption.Displacement {
	out := make([]preemption.Displacement, 0, len(ids))
	for _, id := range ids {
		c, ok := ownedByID[id]
		if !ok {
			continue
		}
		claimed := slot.Duration().Minutes()
		if c.PlannedStart != nil && c.PlannedEnd != nil {
			claimed = overlapMinutes(slot.Start, slot.End, *c.PlannedStart, *c.PlannedEnd)
		}
		out = append(out, preemption.Displacement{Capture: c, MinutesClaimed: claimed, Overlapped: c.SchedulingNotes.Overlapped})
	}
	return out
}

func overlapMinutes(s1, e1, s2, e2 time.Time) float64 {
	start := s1
	if s2.After(start) {
		start = s2
	}
	end := e1
	if e2.Before(end) {
		end = e2
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start).Minutes()
}

// overlapUsageRecorder is an optional Store capability: recording
// overlap minutes for the daily-budget audit table is not part of
// the Store port every fake in this package implements, so it's
// reached via a type assertion and ignored entirely when absent.
type overlapUsageRecorder interface {
	RecordOverlapUsage(ctx context.Context, ownerID string, date time.Time, minutes int) error
}

// recordOverlapUsage best-effort logs an overlap commit's minutes
// against ownerID's daily budget row. Failure never fails the
// request; overlap enforcement itself stays request-scoped.
func (o *Orchestrator) recordOverlapUsage(ctx context.Context, ownerID string, slot domain.Window) {
	rec, ok := o.store.(overlapUsageRecorder)
	if !ok {
		return
	}
	minutes := int(slot.Duration().Minutes())
	if err := rec.RecordOverlapUsage(ctx, ownerID, slot.Start, minutes); err != nil {
		o.log.Warn("overlap usage record failed", "err", err)
	}
}

// buildConflictDecision assembles the spec.md §6 preferred_conflict
// payload, consulting the advisor when configured.
func (o *Orchestrator) buildConflictDecision(ctx context.Context, target domain.Capture, preferred domain.Window, external, owned []domain.BusyInterval, suggestion *domain.Window, tzName string) ConflictDecision {
	advCtx := advisor.Context{
		Target: target, PreferredSlot: preferred, External: external, Owned: owned,
		Suggestion: suggestion, TimeZone: tzName,
	}

	var decision advisor.Decision
	if o.advisor != nil {
		decision = o.advisor.Advise(ctx, advCtx, o.workingWindow(), true)
	} else {
		decision = advisor.Baseline(advCtx)
	}

	return ConflictDecision{
		Capture:    target,
		Message:    fmt.Sprintf("%q conflicts with %d existing event(s)", target.Content, len(external)+len(owned)),
		Preferred:  preferred,
		Conflicts:  Conflicts{External: external, Owned: owned},
		Suggestion: suggestion,
		Advisor:    &decision,
	}
}
