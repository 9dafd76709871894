// Package routine implements spec.md §4.6: rewriting sleep/meal
// captures into explicit local-night or meal windows.
package routine

import (
	"time"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/tz"
)

// Normalize mutates c in place per spec.md §4.6, if and only if c is a
// routine capture. It is idempotent: re-invoking with the same inputs
// (same now, tzName, and starting field values) yields identical
// fields, since every derived field is recomputed from the same base
// reference rather than incrementally adjusted.
func Normalize(c *domain.Capture, now time.Time, tzName string) error {
	kind := domain.RoutineKindOf(c)
	if kind == "" {
		return nil
	}

	locked := c.IsLocked()

	switch kind {
	case domain.RoutineSleep:
		if err := normalizeSleep(c, now, tzName); err != nil {
			return err
		}
	case domain.RoutineMeal:
		if err := normalizeMeal(c, now, tzName); err != nil {
			return err
		}
	}

	if !locked {
		c.FreezeUntil = nil
	}
	return nil
}

func normalizeSleep(c *domain.Capture, now time.Time, tzName string) error {
	base := baseReference(c, now)

	nightStart, err := tz.BuildZonedDateTime(tzName, base, 0, 22, 0)
	if err != nil {
		return err
	}
	nightEnd, err := tz.BuildZonedDateTime(tzName, base, 1, 7, 30)
	if err != nil {
		return err
	}

	c.ConstraintKind = domain.ConstraintWindow
	c.WindowStart = &nightStart
	c.WindowEnd = &nightEnd
	c.ConstraintTime = &nightStart
	c.ConstraintEnd = &nightEnd
	c.CannotOverlap = true
	c.DurationFlexibility = domain.DurationFixed
	c.StartFlexibility = domain.StartFlexibilitySoft
	if c.PreferredTimeOfDay == nil {
		night := domain.TimeOfDayNight
		c.PreferredTimeOfDay = &night
	}
	if c.DeadlineAt == nil {
		c.DeadlineAt = &nightEnd
	}
	return nil
}

func normalizeMeal(c *domain.Capture, now time.Time, tzName string) error {
	if c.WindowStart == nil || c.WindowEnd == nil {
		base := baseReference(c, now)
		mealStart, err := tz.BuildZonedDateTime(tzName, base, 0, 12, 0)
		if err != nil {
			return err
		}
		mealEnd, err := tz.BuildZonedDateTime(tzName, base, 0, 14, 0)
		if err != nil {
			return err
		}
		c.WindowStart = &mealStart
		c.WindowEnd = &mealEnd
		c.ConstraintTime = &mealStart
		c.ConstraintEnd = &mealEnd
	}

	c.ConstraintKind = domain.ConstraintWindow
	c.CannotOverlap = false
	c.DurationFlexibility = domain.DurationFixed
	c.StartFlexibility = domain.StartFlexibilitySoft
	if c.PreferredTimeOfDay == nil {
		night := domain.TimeOfDayNight
		c.PreferredTimeOfDay = &night
	}
	if c.DeadlineAt == nil {
		c.DeadlineAt = c.WindowEnd
	}
	return nil
}

// baseReference picks the base date per spec.md §4.6: prefer
// start_target_at, then original_target_time, then today (if
// time_pref_day=="today") else tomorrow.
func baseReference(c *domain.Capture, now time.Time) time.Time {
	if c.StartTargetAt != nil {
		return *c.StartTargetAt
	}
	if c.OriginalTargetTime != nil {
		return *c.OriginalTargetTime
	}
	if c.TimePrefDay != nil && *c.TimePrefDay == "today" {
		return now
	}
	return tz.AddDays(now, 1)
}
