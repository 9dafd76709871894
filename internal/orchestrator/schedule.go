package orchestrator

import (
	"context"
	"time"

	"diaguru-scheduler/internal/chunking"
	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/grid"
	"diaguru-scheduler/internal/lateplacement"
	"diaguru-scheduler/internal/preemption"
	"diaguru-scheduler/internal/search"
	"diaguru-scheduler/internal/shared"
	"diaguru-scheduler/internal/tz"
)

// scheduleWithoutPreferred implements spec.md §4.9 steps 6-10, entered
// when the request carries no preferred slot (or is re-entered, with
// rebalancing disabled, by rescheduleDisplaced for a capture that
// reclaimConflicts displaced).
func (o *Orchestrator) scheduleWithoutPreferred(ctx context.Context, capture *domain.Capture, env requestEnv) (*Result, error) {
	// Step 6: plan-candidate search, commit if it lands inside window.
	if candidate, ok := o.planCandidate(env); ok && !candidate.End.After(env.sched.End) {
		return o.commitSlot(ctx, capture, candidate, singleChunk(candidate, false), domain.ActionScheduled, env)
	}

	// Step 7: deadline-direct chunked placement.
	if env.deadline != nil {
		if cp, ok := o.deadlineDirectChunks(capture, env); ok {
			return o.commitSlot(ctx, capture, cp.span, cp.chunks, domain.ActionScheduled, env)
		}
	}

	// Step 8: grid-preemption.
	if env.req.AllowRebalance {
		res, err := o.gridPreemption(ctx, capture, env)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}

	// Steps 9-10: late fallback, then structured failure.
	if env.deadline != nil && env.req.AllowLatePlacement {
		if res, ok := lateplacement.FindLateSlot(env.intervals, env.duration, *env.deadline, env.req.Now, env.opts); ok {
			return o.commitLate(ctx, capture, res.Slot, env)
		}
	}

	if env.deadline != nil {
		return nil, o.capacityError(shared.ReasonSlotExceedsDeadline, *capture, env.deadline, env.sched, env.intervals, env.duration)
	}
	return nil, o.capacityError(shared.ReasonNoSlot, *capture, nil, env.sched, env.intervals, env.duration)
}

// planCandidate runs the plan-mode-appropriate search from spec.md §4.8:
// deadline mode sweeps up to the deadline, window mode sweeps the
// plan's own bounds, and start/flexible modes fall back to the general
// next-available sweep (start mode only reaches here if its preferred
// slot was already consumed or absent upstream).
func (o *Orchestrator) planCandidate(env requestEnv) (domain.Window, bool) {
	switch env.plan.Mode {
	case domain.PlanDeadline:
		return search.FindSlotBeforeDeadline(env.intervals, env.duration, *env.deadline, env.req.Now)
	case domain.PlanWindow:
		return search.FindSlotWithinWindow(env.intervals, env.duration, env.plan.WindowBounds.Start, env.plan.WindowBounds.End, env.req.Now)
	default:
		return search.FindNextAvailableSlot(env.intervals, env.duration, env.opts)
	}
}

// chunkPlacement is a committed multi-chunk placement spanning its
// first chunk's start to its last chunk's end.
type chunkPlacement struct {
	span   domain.Window
	chunks []domain.Chunk
}

// deadlineDirectChunks implements spec.md §4.9 step 7: split the
// duration into chunks (§4.7) and try to fit them consecutively across
// the scheduling window, up to the deadline.
func (o *Orchestrator) deadlineDirectChunks(capture *domain.Capture, env requestEnv) (chunkPlacement, bool) {
	allowSplit := capture.DurationFlexibility == domain.DurationSplitAllowed
	minChunk := capture.EffectiveMinChunk(o.cfg.DefaultMinChunkMinutes)
	maxSplits := 1
	if capture.MaxSplits != nil && *capture.MaxSplits > 0 {
		maxSplits = *capture.MaxSplits
	}
	durations := chunking.GenerateChunkDurations(env.duration, minChunk, maxSplits, allowSplit)

	placements, _, ok := chunking.PlaceChunksWithinRange(durations, env.intervals, env.sched.Start, *env.deadline, env.tzName, env.enforceWorkingWindow, env.w)
	if !ok {
		return chunkPlacement{}, false
	}
	chunks := make([]domain.Chunk, len(placements))
	for i, p := range placements {
		chunks[i] = domain.Chunk{Start: p.Start, End: p.End}
	}
	return chunkPlacement{
		span:   domain.Window{Start: placements[0].Start, End: placements[len(placements)-1].End},
		chunks: chunks,
	}, true
}

// gridPreemption implements spec.md §4.9 step 8: among owned-only
// windowed candidates of the target duration, pick the highest
// net-gain displacement whose constituents are all outranked,
// unfrozen and outside the stability window.
func (o *Orchestrator) gridPreemption(ctx context.Context, capture *domain.Capture, env requestEnv) (*Result, error) {
	candidates := grid.CollectGridWindowCandidates(env.grid, env.duration, env.sched.Start, env.sched.End, 32)

	stabilityWindow := time.Duration(o.cfg.StabilityWindowMinutes) * time.Minute
	planModeDeadline := env.plan.Mode == domain.PlanDeadline

	type option struct {
		slot domain.Window
		ids  []string
		gain preemption.NetGainResult
	}
	var best *option

	for _, cand := range candidates {
		if cand.OwnedMinutes == 0 {
			continue
		}
		slot := domain.Window{Start: cand.Start, End: tz.AddMinutes(cand.Start, env.duration)}

		movable := make([]string, 0, len(cand.OwnedCaptureIDs))
		for _, id := range cand.OwnedCaptureIDs {
			oc, ok := env.ownedByID[id]
			if !ok || !preemption.IsMovable(oc, env.req.Now, stabilityWindow, planModeDeadline) {
				continue
			}
			if o.perMinute(oc, env.req.Now) >= o.perMinute(*capture, env.req.Now) {
				continue
			}
			movable = append(movable, id)
		}
		if len(movable) == 0 {
			continue
		}

		combo, ok := preemption.SelectMinimalPreemptionSet(preemption.SelectionInput{
			Slot: slot, Events: env.events, CandidateIDs: movable, AllowCompressedBuffer: true, Now: env.req.Now,
		})
		if !ok {
			continue
		}

		displacements := buildDisplacements(combo, env.ownedByID, slot, env.events)
		gain := preemption.EvaluatePreemptionNetGain(preemption.NetGainInput{
			Target: *capture, Displacements: displacements, MinutesClaimed: slot.Duration().Minutes(),
			ReferenceNow: env.req.Now, PerMinute: o.perMinute, OverlapSoftCost: o.overlapSoftCost,
		}, o.thresholds())
		if !gain.Allowed {
			continue
		}
		if best == nil || gain.Net > best.gain.Net {
			best = &option{slot: slot, ids: combo, gain: gain}
		}
	}

	if best == nil {
		return nil, nil
	}
	victims, err := o.reclaimConflicts(ctx, best.ids, env)
	if err != nil {
		return nil, err
	}
	res, err := o.commitSlot(ctx, capture, best.slot, singleChunk(best.slot, false), domain.ActionScheduled, env)
	if err != nil {
		return nil, err
	}
	o.rescheduleReclaimed(ctx, victims, best.slot, env)
	return res, nil
}
