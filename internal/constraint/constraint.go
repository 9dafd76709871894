// Package constraint implements spec.md §4.5: given a capture, derive
// its deadline, window and preferred anchor, and produce a
// SchedulingPlan.
package constraint

import (
	"time"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/tz"
)

// Result bundles the computed plan with the resolved deadline, since
// the deadline's precedence rule (spec.md §4.5: deadline_at >
// constraint-specific rule > window_end > null) is independent of
// which plan mode is selected.
type Result struct {
	Plan     domain.SchedulingPlan
	Deadline *time.Time
}

// ComputeSchedulingPlan derives the SchedulingPlan and resolved
// deadline for capture c, evaluated at now in tzName.
func ComputeSchedulingPlan(c *domain.Capture, now time.Time, tzName string, durationMinutes int) (Result, error) {
	kind := domain.NormalizeConstraintKind(c.ConstraintKind)

	var constraintDeadline *time.Time
	switch kind {
	case domain.ConstraintDeadlineTime:
		if c.ConstraintTime != nil {
			constraintDeadline = c.ConstraintTime
		}
	case domain.ConstraintDeadlineDate:
		if c.ConstraintDate != nil {
			endOfDay, err := tz.BuildZonedDateTime(tzName, *c.ConstraintDate, 0, 22, 0)
			if err != nil {
				return Result{}, err
			}
			constraintDeadline = &endOfDay
		}
	}

	deadline := resolveDeadline(c, constraintDeadline)

	var plan domain.SchedulingPlan
	switch {
	case kind == domain.ConstraintDeadlineTime || kind == domain.ConstraintDeadlineDate:
		plan = domain.Flexible()
		if deadline != nil {
			plan = domain.DeadlinePlan(*deadline)
		}
	case kind == domain.ConstraintStartTime:
		start := c.ConstraintTime
		if start == nil {
			start = c.OriginalTargetTime
		}
		if start != nil {
			anchor := *start
			if now.After(anchor) {
				anchor = now
			}
			plan = domain.StartPlan(domain.Window{
				Start: anchor,
				End:   tz.AddMinutes(anchor, durationMinutes),
			})
		} else {
			plan = domain.Flexible()
		}
	case kind == domain.ConstraintWindow && c.WindowStart != nil && c.WindowEnd != nil && c.WindowEnd.After(*c.WindowStart):
		plan = domain.WindowPlan(domain.Window{Start: *c.WindowStart, End: *c.WindowEnd})
	default:
		plan = domain.Flexible()
	}

	return Result{Plan: plan, Deadline: deadline}, nil
}

// resolveDeadline applies the spec.md §4.5 precedence: deadline_at >
// constraint-specific rule > window_end > null.
func resolveDeadline(c *domain.Capture, constraintDeadline *time.Time) *time.Time {
	if c.DeadlineAt != nil {
		return c.DeadlineAt
	}
	if constraintDeadline != nil {
		return constraintDeadline
	}
	if c.WindowEnd != nil {
		return c.WindowEnd
	}
	return nil
}
