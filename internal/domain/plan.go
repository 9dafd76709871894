package domain

import "time"

// PlanMode tags the variant carried by a SchedulingPlan.
type PlanMode string

const (
	PlanFlexible PlanMode = "flexible"
	PlanStart    PlanMode = "start"
	PlanWindow   PlanMode = "window"
	PlanDeadline PlanMode = "deadline"
)

// Window is an inclusive-start, exclusive-end wall-time span.
type Window struct {
	Start time.Time
	End   time.Time
}

// Duration returns the window's length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Valid reports whether the window is well-formed (End strictly after Start).
func (w Window) Valid() bool {
	return w.End.After(w.Start)
}

// SchedulingPlan is the tagged variant from spec.md §3/§9: exactly one
// of PreferredSlot, WindowBounds or Deadline is meaningful, selected by
// Mode. Representing it this way (rather than a "mode + optional
// fields" struct with ad-hoc nil checks scattered everywhere) keeps
// the precedence logic in internal/orchestrator a straightforward switch.
type SchedulingPlan struct {
	Mode          PlanMode
	PreferredSlot *Window // PlanStart
	WindowBounds  *Window // PlanWindow
	Deadline      *time.Time // PlanDeadline
}

// Flexible builds a {flexible} plan.
func Flexible() SchedulingPlan {
	return SchedulingPlan{Mode: PlanFlexible}
}

// StartPlan builds a {start, preferredSlot} plan.
func StartPlan(slot Window) SchedulingPlan {
	return SchedulingPlan{Mode: PlanStart, PreferredSlot: &slot}
}

// WindowPlan builds a {window, window} plan.
func WindowPlan(w Window) SchedulingPlan {
	return SchedulingPlan{Mode: PlanWindow, WindowBounds: &w}
}

// DeadlinePlan builds a {deadline, deadline} plan.
func DeadlinePlan(deadline time.Time) SchedulingPlan {
	return SchedulingPlan{Mode: PlanDeadline, Deadline: &deadline}
}
