// Package priority implements spec.md §4.2: a pure function mapping a
// capture and a reference instant to a non-negative priority score,
// including the routine-kind dampening step.
package priority

import (
	"math"
	"time"

	"diaguru-scheduler/internal/domain"
)

// Weights controls how the component signals combine. Defaults mirror
// the teacher's config-driven-constant style: reasonable defaults,
// overridable per deployment.
type Weights struct {
	Importance        float64
	Urgency           float64
	Impact            float64
	ReschedulePenalty float64
	DeadlineProximity float64
	Age               float64

	// Externality and RescheduleCount scale the additive score
	// multiplicatively rather than add to it, so a capture that keeps
	// getting bumped (or keeps imposing cost on the rest of the
	// calendar) climbs priority in proportion to its own score instead
	// of by a flat amount.
	Externality     float64
	RescheduleCount float64
}

// DefaultWeights returns the baseline weighting.
func DefaultWeights() Weights {
	return Weights{
		Importance:        10,
		Urgency:           8,
		Impact:            6,
		ReschedulePenalty: 4,
		DeadlineProximity: 20,
		Age:               0.05,
		Externality:       0.1,
		RescheduleCount:   0.05,
	}
}

const (
	sleepScale = 0.7
	sleepCap   = 70
	mealScale  = 0.5
	mealCap    = 55
)

// Score computes the capture's priority at referenceNow, per spec.md
// §4.2. The routine dampening is applied last, after the raw additive
// score is assembled.
func Score(c domain.Capture, referenceNow time.Time, w Weights) float64 {
	score := w.Importance * float64(c.Importance)

	if c.Urgency != nil {
		score += w.Urgency * *c.Urgency
	}
	if c.Impact != nil {
		score += w.Impact * *c.Impact
	}
	if c.ReschedulePenalty != nil {
		score += w.ReschedulePenalty * *c.ReschedulePenalty
	}
	score += w.DeadlineProximity * deadlineProximity(c, referenceNow)
	score += w.Age * ageHours(c, referenceNow)

	if score < 0 {
		score = 0
	}

	score *= 1 + w.Externality*c.ExternalityScore
	score *= 1 + w.RescheduleCount*float64(c.RescheduleCount)

	if score < 0 {
		score = 0
	}

	switch domain.RoutineKindOf(&c) {
	case domain.RoutineSleep:
		score = math.Min(score*sleepScale, sleepCap)
	case domain.RoutineMeal:
		score = math.Min(score*mealScale, mealCap)
	}
	if score < 0 {
		score = 0
	}
	return score
}

// PerMinute returns Score divided by the capture's estimated duration,
// per spec.md §4.2 ("score / max(durationMinutes, 1)").
func PerMinute(c domain.Capture, referenceNow time.Time, w Weights) float64 {
	d := c.EstimatedMinutes
	if d < 1 {
		d = 1
	}
	return Score(c, referenceNow, w) / float64(d)
}

// deadlineProximity returns a value in [0,1] that grows monotonically
// as the deadline nears (or has passed); 0 when no deadline is set.
func deadlineProximity(c domain.Capture, now time.Time) float64 {
	if c.DeadlineAt == nil {
		return 0
	}
	remaining := c.DeadlineAt.Sub(now)
	if remaining <= 0 {
		return 1
	}
	const horizon = 7 * 24 * time.Hour
	if remaining >= horizon {
		return 0
	}
	return 1 - float64(remaining)/float64(horizon)
}

// ageHours returns the capture's age in hours at referenceNow, floored
// at zero for clock skew.
func ageHours(c domain.Capture, referenceNow time.Time) float64 {
	age := referenceNow.Sub(c.CreatedAt).Hours()
	if age < 0 {
		return 0
	}
	return age
}
