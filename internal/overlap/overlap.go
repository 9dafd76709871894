// Package overlap implements spec.md §4.12: deciding whether a
// co-scheduled slot is permitted, and tracking the daily overlap
// budget.
package overlap

import (
	"time"

	"diaguru-scheduler/internal/domain"
)

// Config holds the overlap policy constants from spec.md §6.
type Config struct {
	Enabled                 bool
	MaxConcurrency          int
	PerTaskOverlapFraction  float64
	DailyBudgetMinutes      int
	SoftCostPerMinute       float64
}

// Usage tracks daily overlap minutes consumed, keyed by the slot
// start's UTC ISO date (YYYY-MM-DD), per spec.md §4.12. It is
// request-scoped: spec.md §5 is explicit that overlap usage is not
// persisted across requests.
type Usage struct {
	minutesByDay map[string]int
}

// NewUsage returns an empty per-request Usage tracker.
func NewUsage() *Usage {
	return &Usage{minutesByDay: map[string]int{}}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MinutesUsed returns the overlap minutes already booked on t's day.
func (u *Usage) MinutesUsed(t time.Time) int {
	return u.minutesByDay[dayKey(t)]
}

// Record increments the per-day bucket for slot's start date.
func (u *Usage) Record(slot domain.Window) {
	u.minutesByDay[dayKey(slot.Start)] += int(slot.Duration().Minutes())
}

// CanCaptureOverlap reports whether a single capture is eligible to
// participate in an overlapped slot at all: it must not be blocking
// and must not require a hard start.
func CanCaptureOverlap(c *domain.Capture) bool {
	return !c.CannotOverlap && c.StartFlexibility != domain.StartFlexibilityHard
}

// PriorityFunc scores a capture's per-minute priority at a reference
// instant; internal/priority.PerMinute satisfies this.
type PriorityFunc func(domain.Capture, time.Time) float64

// Decision is the result of evaluating an overlap commit.
type Decision struct {
	Allowed bool
	Reason  string
}

// Evaluate decides whether target may be committed into slot alongside
// the already co-scheduled participants, per spec.md §4.12's
// conjunction of conditions.
func Evaluate(cfg Config, usage *Usage, target domain.Capture, participants []domain.Capture, slot domain.Window, referenceNow time.Time, perMinute PriorityFunc) Decision {
	if !cfg.Enabled {
		return Decision{Reason: "overlap disabled"}
	}
	if !CanCaptureOverlap(&target) {
		return Decision{Reason: "target blocks overlap"}
	}
	for i := range participants {
		if !CanCaptureOverlap(&participants[i]) {
			return Decision{Reason: "participant blocks overlap"}
		}
	}

	concurrency := len(participants) + 1
	if concurrency > cfg.MaxConcurrency {
		return Decision{Reason: "exceeds max concurrency"}
	}

	slotMinutes := slot.Duration().Minutes()
	if target.EstimatedMinutes > 0 && slotMinutes > cfg.PerTaskOverlapFraction*float64(target.EstimatedMinutes) {
		return Decision{Reason: "exceeds per-task overlap fraction"}
	}

	used := usage.MinutesUsed(slot.Start)
	if float64(used)+slotMinutes > float64(cfg.DailyBudgetMinutes) {
		return Decision{Reason: "exceeds daily overlap budget"}
	}

	benefit := perMinute(target, referenceNow) * slotMinutes
	softCost := cfg.SoftCostPerMinute * slotMinutes
	if benefit <= softCost {
		return Decision{Reason: "benefit does not exceed soft cost"}
	}

	return Decision{Allowed: true}
}

// PrimeParticipant returns the index (within participants, or -1 for
// target) of the highest-priority captures among target+participants,
// which the committed chunk marks prime=true.
func PrimeParticipant(target domain.Capture, participants []domain.Capture, referenceNow time.Time, perMinute PriorityFunc) int {
	best := perMinute(target, referenceNow)
	bestIdx := -1
	for i, p := range participants {
		if s := perMinute(p, referenceNow); s > best {
			best = s
			bestIdx = i
		}
	}
	return bestIdx
}
