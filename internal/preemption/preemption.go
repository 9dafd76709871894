// Package preemption implements spec.md §4.11: selecting minimal
// displacement sets, scoring net-gain, and enforcing cost/benefit
// thresholds.
package preemption

import (
	"time"

	"diaguru-scheduler/internal/busy"
	"diaguru-scheduler/internal/domain"
)

// MaxCombinationSize and MaxCombinations bound the search over
// candidate owned-event removals, per spec.md §4.11.
const (
	MaxCombinationSize = 4
	MaxCombinations     = 64
)

// SelectionInput configures SelectMinimalPreemptionSet.
type SelectionInput struct {
	Slot                  domain.Window
	Events                []domain.CalendarEvent
	CandidateIDs          []string
	AllowCompressedBuffer bool
	Now                   time.Time
}

// SelectMinimalPreemptionSet tries every combination of size 1..4
// (capped at 64 combinations) over candidateIds, recomputing busy
// intervals with the remaining events at each buffer spec.md §4.11
// allows (full, and compressed when enabled). It returns the smallest
// combination whose removal makes slot feasible.
func SelectMinimalPreemptionSet(in SelectionInput) ([]string, bool) {
	buffers := []time.Duration{busy.DefaultBuffer}
	if in.AllowCompressedBuffer {
		buffers = append(buffers, busy.CompressedBuffer)
	}

	tried := 0
	for size := 1; size <= MaxCombinationSize && size <= len(in.CandidateIDs); size++ {
		for _, combo := range combinations(in.CandidateIDs, size) {
			if tried >= MaxCombinations {
				return nil, false
			}
			tried++
			removed := toSet(combo)
			remaining := make([]domain.CalendarEvent, 0, len(in.Events))
			for _, ev := range in.Events {
				if !removed[ev.ID] {
					remaining = append(remaining, ev)
				}
			}
			for _, buf := range buffers {
				intervals := busy.ComputeBusyIntervals(remaining, busy.ExpandOptions{Buffer: buf, Now: in.Now})
				if busy.IsSlotFree(in.Slot.Start, in.Slot.End, intervals) {
					return combo, true
				}
			}
		}
	}
	return nil, false
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// combinations returns all size-length subsets of ids, in stable order.
func combinations(ids []string, size int) [][]string {
	var out [][]string
	var pick func(start int, cur []string)
	pick = func(start int, cur []string) {
		if len(cur) == size {
			combo := append([]string{}, cur...)
			out = append(out, combo)
			return
		}
		for i := start; i < len(ids); i++ {
			pick(i+1, append(cur, ids[i]))
		}
	}
	pick(0, nil)
	return out
}

// Displacement is one owned capture slated for removal.
type Displacement struct {
	Capture         domain.Capture
	MinutesClaimed  float64
	Overlapped      bool
}

// NetGainInput configures EvaluatePreemptionNetGain.
type NetGainInput struct {
	Target          domain.Capture
	Displacements   []Displacement
	MinutesClaimed  float64
	ReferenceNow     time.Time
	PerMinute       func(domain.Capture, time.Time) float64
	OverlapSoftCost func(Displacement) float64
}

// Thresholds are the preemption policy constants from spec.md §6.
type Thresholds struct {
	NetGainFloor        float64
	PerMinuteGainFloor  float64
	MaxDisplacedMinutes float64
	MaxDisplacedTasks   int
}

// NetGainResult is the outcome of EvaluatePreemptionNetGain.
type NetGainResult struct {
	Benefit       float64
	Cost          float64
	Net           float64
	PerMinuteGain float64
	Allowed       bool
}

// EvaluatePreemptionNetGain computes benefit/cost/net per spec.md
// §4.11 and decides whether the displacement is permitted under
// thresholds.
func EvaluatePreemptionNetGain(in NetGainInput, th Thresholds) NetGainResult {
	targetDuration := float64(in.Target.EstimatedMinutes)
	if targetDuration < 1 {
		targetDuration = 1
	}
	benefit := in.PerMinute(in.Target, in.ReferenceNow) * in.MinutesClaimed

	var cost float64
	var displacedMinutes float64
	for _, d := range in.Displacements {
		duration := float64(d.Capture.EstimatedMinutes)
		if duration < 1 {
			duration = 1
		}
		cost += in.PerMinute(d.Capture, in.ReferenceNow) * d.MinutesClaimed
		if in.OverlapSoftCost != nil {
			cost += in.OverlapSoftCost(d)
		}
		displacedMinutes += d.MinutesClaimed
	}

	net := benefit - cost
	perMinuteGain := 0.0
	if in.MinutesClaimed > 0 {
		perMinuteGain = net / in.MinutesClaimed
	}

	allowed := net >= th.NetGainFloor &&
		perMinuteGain >= th.PerMinuteGainFloor &&
		displacedMinutes <= th.MaxDisplacedMinutes &&
		len(in.Displacements) <= th.MaxDisplacedTasks

	return NetGainResult{Benefit: benefit, Cost: cost, Net: net, PerMinuteGain: perMinuteGain, Allowed: allowed}
}

// IsMovable reports whether a candidate owned capture may be
// considered for displacement: not frozen, not within the stability
// window of now, unless the plan mode is deadline (which bypasses the
// stability guard), per spec.md §4.11.
func IsMovable(c domain.Capture, now time.Time, stabilityWindow time.Duration, planModeIsDeadline bool) bool {
	if c.IsFrozen(now) {
		return false
	}
	if planModeIsDeadline {
		return true
	}
	if c.PlannedStart != nil {
		delta := c.PlannedStart.Sub(now)
		if delta < 0 {
			delta = -delta
		}
		if delta <= stabilityWindow {
			return false
		}
	}
	return true
}
