// Package domain holds the core scheduling types shared by every
// component in internal/: Capture, CalendarEvent, BusyInterval,
// SchedulingPlan, OccupancyGrid, Chunk, PlanRun and PlanAction.
package domain

import "time"

// ConstraintKind is the declared shape of a capture's temporal
// constraint, before the constraint resolver (internal/constraint)
// turns it into a SchedulingPlan.
type ConstraintKind string

const (
	ConstraintFlexible     ConstraintKind = "flexible"
	ConstraintDeadlineTime ConstraintKind = "deadline_time"
	ConstraintDeadlineDate ConstraintKind = "deadline_date"
	ConstraintStartTime    ConstraintKind = "start_time"
	ConstraintWindow       ConstraintKind = "window"

	// Aliases accepted on input and normalized by the constraint resolver.
	constraintDeadlineAlias ConstraintKind = "deadline"
	constraintEndTimeAlias  ConstraintKind = "end_time"
)

// NormalizeConstraintKind resolves the deadline/end_time aliases to
// deadline_time, per spec.md §4.5.
func NormalizeConstraintKind(k ConstraintKind) ConstraintKind {
	switch k {
	case constraintDeadlineAlias, constraintEndTimeAlias:
		return ConstraintDeadlineTime
	default:
		return k
	}
}

// StartFlexibility controls whether a capture's start may be bumped.
type StartFlexibility string

const (
	StartFlexibilitySoft StartFlexibility = "soft"
	StartFlexibilityHard StartFlexibility = "hard"
)

// DurationFlexibility controls whether a capture's duration may be split.
type DurationFlexibility string

const (
	DurationFixed        DurationFlexibility = "fixed"
	DurationSplitAllowed DurationFlexibility = "split_allowed"
)

// TimeOfDay is a preferred placement band.
type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "morning"
	TimeOfDayAfternoon TimeOfDay = "afternoon"
	TimeOfDayEvening   TimeOfDay = "evening"
	TimeOfDayNight     TimeOfDay = "night"
)

// TimeOfDayBand is the [startHour, endHour) local-hour span a
// TimeOfDay maps to when the slot search tries preferred bands.
type TimeOfDayBand struct {
	StartHour int
	EndHour   int
}

// DefaultTimeOfDayBands gives the default local-hour bands used by
// internal/search when a capture requests a preferred time of day.
var DefaultTimeOfDayBands = map[TimeOfDay]TimeOfDayBand{
	TimeOfDayMorning:   {StartHour: 8, EndHour: 12},
	TimeOfDayAfternoon: {StartHour: 12, EndHour: 17},
	TimeOfDayEvening:   {StartHour: 17, EndHour: 21},
	TimeOfDayNight:     {StartHour: 21, EndHour: 24},
}

// CaptureStatus is the lifecycle state of a Capture (spec.md §3 Lifecycle).
type CaptureStatus string

const (
	StatusPending   CaptureStatus = "pending"
	StatusScheduled CaptureStatus = "scheduled"
	StatusCompleted CaptureStatus = "completed"
)

// RoutineKind identifies routine captures normalized by internal/routine.
type RoutineKind string

const (
	RoutineSleep RoutineKind = "routine.sleep"
	RoutineMeal  RoutineKind = "routine.meal"
)

// SchedulingNotes is the narrow typed projection of the heterogeneous
// JSON blob the original system stored on captures (spec.md §9 DESIGN
// NOTES "Dynamic shape in scheduling_notes"). Only the fields the
// scheduler itself writes are modeled; anything else round-trips
// through PreviousNote untouched.
type SchedulingNotes struct {
	Overlapped   bool           `json:"overlapped,omitempty"`
	Explanation  string         `json:"explanation,omitempty"`
	PreviousNote map[string]any `json:"previous_note,omitempty"`
}

// Capture is the unit of scheduling (spec.md §3).
type Capture struct {
	ID      string
	OwnerID string
	Content string

	EstimatedMinutes  int
	Importance        int
	Urgency           *float64
	Impact            *float64
	ReschedulePenalty *float64

	ConstraintKind ConstraintKind
	ConstraintTime *time.Time
	ConstraintEnd  *time.Time
	ConstraintDate *time.Time

	DeadlineAt  *time.Time
	WindowStart *time.Time
	WindowEnd   *time.Time

	StartTargetAt      *time.Time
	OriginalTargetTime *time.Time
	IsSoftStart         bool

	CannotOverlap        bool
	StartFlexibility     StartFlexibility
	DurationFlexibility  DurationFlexibility
	MinChunkMinutes      *int
	MaxSplits            *int

	ExtractionKind    string
	TaskTypeHint      string
	PreferredTimeOfDay *TimeOfDay
	TimePrefDay        *string // "today" | "tomorrow"

	Status       CaptureStatus
	PlannedStart *time.Time
	PlannedEnd   *time.Time
	ScheduledFor *time.Time

	CalendarEventID   *string
	CalendarEventETag *string

	FreezeUntil     *time.Time
	RescheduleCount int

	ExternalityScore float64

	CreatedAt time.Time
	UpdatedAt time.Time
	PlanID    *string

	ManualTouchAt   *time.Time
	SchedulingNotes SchedulingNotes
}

// IsRoutine reports whether the capture was produced by the routine
// extraction pipeline (spec.md §4.6).
func (c *Capture) IsRoutine() bool {
	return RoutineKindOf(c) != ""
}

// RoutineKindOf returns the routine kind of a capture, or "" if it is
// not a routine capture. Either task_type_hint or extraction_kind may
// carry the "routine." prefix.
func RoutineKindOf(c *Capture) RoutineKind {
	for _, hint := range []string{c.TaskTypeHint, c.ExtractionKind} {
		switch {
		case hint == string(RoutineSleep):
			return RoutineSleep
		case hint == string(RoutineMeal):
			return RoutineMeal
		}
	}
	return ""
}

// IsFrozen reports whether freeze_until prevents any reschedule at `now`.
func (c *Capture) IsFrozen(now time.Time) bool {
	return c.FreezeUntil != nil && c.FreezeUntil.After(now)
}

// IsLocked reports whether the user has "locked" the capture via a
// manual touch or an existing freeze (spec.md §4.6).
func (c *Capture) IsLocked() bool {
	return c.ManualTouchAt != nil || c.FreezeUntil != nil
}

// EffectiveMinChunk returns the capture's min-chunk minutes, defaulting
// to cfg's DefaultMinChunkMinutes when unset.
func (c *Capture) EffectiveMinChunk(defaultMinChunk int) int {
	if c.MinChunkMinutes != nil && *c.MinChunkMinutes > 0 {
		return *c.MinChunkMinutes
	}
	return defaultMinChunk
}

// ClampDuration clamps a raw duration to the [5, 480] minute range
// spec.md §3 requires.
func ClampDuration(minutes int) int {
	switch {
	case minutes < 5:
		return 5
	case minutes > 480:
		return 480
	default:
		return minutes
	}
}
