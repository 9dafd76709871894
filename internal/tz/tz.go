// Package tz implements spec.md §4.1: zoned datetime construction and
// working-window predicates. The one subtlety worth a package comment
// is DST: BuildZonedDateTime resolves the timezone offset at the
// *candidate* instant, not at the reference instant, so a capture
// normalized across a DST transition lands on the intended wall clock
// time rather than one hour off.
package tz

import "time"

// BuildZonedDateTime returns the absolute instant whose wall-clock
// time in tz is (hour, minute) on the local date of ref, optionally
// shifted forward by dayOffset days. Per spec.md §4.1 / §9, the
// instant is constructed directly from the (year, month, day+offset,
// hour, minute) tuple in tz, which makes Go's time.Date resolve the
// UTC offset at the candidate instant — the DST-correct behavior the
// original implementation got wrong by adding offsetMinutes computed
// at ref instead.
func BuildZonedDateTime(tzName string, ref time.Time, dayOffset, hour, minute int) (time.Time, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return time.Time{}, err
	}
	local := ref.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+dayOffset, hour, minute, 0, 0, loc), nil
}

// WorkingWindow is the portion of a local day within which non-routine
// captures may be scheduled (spec.md §6: WORKING_START=8, DAY_END_HOUR=22).
type WorkingWindow struct {
	StartHour int
	EndHour   int
}

// DefaultWorkingWindow returns the spec.md default 08:00-22:00 window.
func DefaultWorkingWindow() WorkingWindow {
	return WorkingWindow{StartHour: 8, EndHour: 22}
}

// IsBeforeWorkingStart reports whether instant t, viewed in tz, falls
// before the working window's start hour.
func IsBeforeWorkingStart(tzName string, t time.Time, w WorkingWindow) (bool, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return false, err
	}
	local := t.In(loc)
	startOfDay := time.Date(local.Year(), local.Month(), local.Day(), w.StartHour, 0, 0, 0, loc)
	return local.Before(startOfDay), nil
}

// IsAfterWorkingEnd reports whether instant t, viewed in tz, falls at
// or after the working window's end hour.
func IsAfterWorkingEnd(tzName string, t time.Time, w WorkingWindow) (bool, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return false, err
	}
	local := t.In(loc)
	endOfDay := time.Date(local.Year(), local.Month(), local.Day(), w.EndHour, 0, 0, 0, loc)
	return !local.Before(endOfDay), nil
}

// WithinWorkingWindow reports whether [s, e) lies entirely inside the
// working window on its local day.
func WithinWorkingWindow(tzName string, s, e time.Time, w WorkingWindow) (bool, error) {
	before, err := IsBeforeWorkingStart(tzName, s, w)
	if err != nil {
		return false, err
	}
	after, err := IsAfterWorkingEnd(tzName, e, w)
	if err != nil {
		return false, err
	}
	return !before && !after, nil
}

// AddMinutes is a pure helper mirroring spec.md's addMinutes.
func AddMinutes(t time.Time, minutes int) time.Time {
	return t.Add(time.Duration(minutes) * time.Minute)
}

// AddDays is a pure helper mirroring spec.md's addDays.
func AddDays(t time.Time, days int) time.Time {
	return t.AddDate(0, 0, days)
}

// StartOfWorkingDay returns the instant of the working window's start
// hour on local's calendar day, in local's own location.
func StartOfWorkingDay(local time.Time, w WorkingWindow) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), w.StartHour, 0, 0, 0, local.Location())
}

// EndOfWorkingDay returns the instant of the working window's end hour
// on local's calendar day, in local's own location.
func EndOfWorkingDay(local time.Time, w WorkingWindow) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day(), w.EndHour, 0, 0, 0, local.Location())
}

// OffsetMinutesAt returns the UTC offset, in minutes, in effect for tz
// at instant t. Used for the local-instant round-trip law in
// spec.md §8.
func OffsetMinutesAt(tzName string, t time.Time) (int, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return 0, err
	}
	_, offsetSeconds := t.In(loc).Zone()
	return offsetSeconds / 60, nil
}
