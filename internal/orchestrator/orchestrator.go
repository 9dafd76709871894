// Package orchestrator implements spec.md §4.9/§4.10: the
// decision-precedence state machine that turns one scheduling request
// into a committed placement, a conflict decision, or a structured
// failure. It composes every lower-level component — tz, priority,
// busy, grid, constraint, routine, chunking, search, preemption,
// overlap, lateplacement, advisor and audit — behind a single Run
// call, the way internal/app wires the teacher's own dependencies at
// construction time.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"diaguru-scheduler/internal/advisor"
	"diaguru-scheduler/internal/audit"
	"diaguru-scheduler/internal/busy"
	"diaguru-scheduler/internal/calendargateway"
	"diaguru-scheduler/internal/config"
	"diaguru-scheduler/internal/constraint"
	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/grid"
	"diaguru-scheduler/internal/lateplacement"
	"diaguru-scheduler/internal/priority"
	"diaguru-scheduler/internal/routine"
	"diaguru-scheduler/internal/search"
	"diaguru-scheduler/internal/shared"
	"diaguru-scheduler/internal/store"
	"diaguru-scheduler/internal/tz"
)

// Request is one /schedule-capture invocation, normalized from the
// HTTP layer's request body (spec.md §6).
type Request struct {
	CaptureID string
	OwnerID   string
	Action    string // "schedule" | "reschedule" | "complete"

	Now      time.Time
	TimeZone string

	PreferredStart *time.Time
	PreferredEnd   *time.Time

	AllowOverlap       bool
	AllowRebalance     bool
	AllowLatePlacement bool
}

// Commit is a successful placement, shaped to the spec.md §6 200 body.
type Commit struct {
	Capture     domain.Capture
	PlanSummary string
	Chunks      []domain.Chunk
	Explanation string
	Overlap     *OverlapOutcome
}

// OverlapOutcome reports the overlap-commit path's outcome (spec.md §4.12).
type OverlapOutcome struct {
	Prime bool
}

// Conflicts bundles the external/owned busy intervals a preferred slot
// collided with (spec.md §4.10).
type Conflicts struct {
	External []domain.BusyInterval
	Owned    []domain.BusyInterval
}

// ConflictDecision is returned when no automatic commit is possible
// (spec.md §6 decision.type="preferred_conflict").
type ConflictDecision struct {
	Capture    domain.Capture
	Message    string
	Preferred  domain.Window
	Conflicts  Conflicts
	Suggestion *domain.Window
	Advisor    *advisor.Decision
}

// Result is the outcome of Run: exactly one of Commit or Conflict is set.
type Result struct {
	Commit   *Commit
	Conflict *ConflictDecision
}

// Orchestrator composes the scheduling-engine components behind a
// single entry point.
type Orchestrator struct {
	store    store.Store
	calendar calendargateway.Gateway
	advisor  *advisor.Client
	cfg      config.SchedulerConfig
	weights  priority.Weights
	log      *slog.Logger
}

// New builds an Orchestrator. advisorClient may be nil when the
// advisor is disabled; Baseline decisions are used instead.
func New(st store.Store, cal calendargateway.Gateway, advisorClient *advisor.Client, cfg config.SchedulerConfig, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{store: st, calendar: cal, advisor: advisorClient, cfg: cfg, weights: priority.DefaultWeights(), log: log}
}

func (o *Orchestrator) workingWindow() tz.WorkingWindow {
	return tz.WorkingWindow{StartHour: o.cfg.WorkingStartHour, EndHour: o.cfg.DayEndHour}
}

func (o *Orchestrator) perMinute(c domain.Capture, now time.Time) float64 {
	return priority.PerMinute(c, now, o.weights)
}

// ErrNotOwner is returned by GetCaptureForOwner when the capture exists
// but belongs to a different owner.
var ErrNotOwner = errors.New("orchestrator: capture not owned by caller")

// GetCaptureForOwner loads a capture by id, scoped to ownerID, for
// read-only callers (the HTTP capture-lookup endpoint) that don't need
// the full scheduling precedence chain.
func (o *Orchestrator) GetCaptureForOwner(ctx context.Context, id, ownerID string) (domain.Capture, error) {
	capture, err := o.store.GetCapture(ctx, id)
	if err != nil {
		return domain.Capture{}, err
	}
	if capture.OwnerID != ownerID {
		return domain.Capture{}, ErrNotOwner
	}
	return capture, nil
}

// Run executes spec.md §4.9's precedence chain for req.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	capture, err := o.store.GetCapture(ctx, req.CaptureID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, shared.NewScheduleError(404, "capture_not_found", "capture not found", nil)
		}
		return nil, shared.NewScheduleError(500, "store_error", "failed to load capture", nil).Wrap(err)
	}
	if capture.OwnerID != req.OwnerID {
		return nil, shared.NewScheduleError(403, "not_owner", "capture not owned by caller", nil)
	}

	tzName := req.TimeZone
	if tzName == "" {
		tzName = "UTC"
	}

	ledger := audit.New(req.OwnerID, func() time.Time { return req.Now })

	var result *Result
	var runErr error
	if req.Action == "complete" {
		result, runErr = o.completeCapture(ctx, req, &capture, ledger)
	} else {
		result, runErr = o.run(ctx, req, &capture, tzName, ledger)
	}

	if run := ledger.Run(); run != nil {
		ledger.Finalize()
		if saveErr := o.store.SavePlanRun(ctx, run); saveErr != nil {
			o.log.Error("orchestrator: failed to persist plan run", slog.String("plan_id", run.ID), slog.Any("error", saveErr))
		}
	}

	return result, runErr
}

func (o *Orchestrator) run(ctx context.Context, req Request, capture *domain.Capture, tzName string, ledger *audit.Ledger) (*Result, error) {
	// Step 1: normalize routines, persist.
	if err := routine.Normalize(capture, req.Now, tzName); err != nil {
		return nil, shared.NewScheduleError(400, "invalid_timezone", "failed to normalize routine capture", nil).Wrap(err)
	}
	if err := o.store.UpdateCapture(ctx, *capture); err != nil {
		return nil, shared.NewScheduleError(500, "store_error", "failed to persist normalized capture", nil).Wrap(err)
	}

	// Step 2: load calendar events and owned captures, build busy
	// intervals and occupancy grid.
	horizonEnd := req.Now.AddDate(0, 0, o.cfg.SearchDays)
	events, err := o.calendar.List(ctx, req.OwnerID, req.Now, horizonEnd)
	if err != nil {
		return nil, toScheduleError(err)
	}
	ownedCaptures, err := o.store.ListOwnedCaptures(ctx, req.OwnerID, req.Now, horizonEnd)
	if err != nil {
		return nil, shared.NewScheduleError(500, "store_error", "failed to load owned captures", nil).Wrap(err)
	}
	ownedByID := make(map[string]domain.Capture, len(ownedCaptures))
	for _, oc := range ownedCaptures {
		ownedByID[oc.ID] = oc
	}

	buffer := time.Duration(o.cfg.BufferMinutes) * time.Minute
	intervals := busy.ComputeBusyIntervals(events, busy.ExpandOptions{Buffer: buffer, Now: req.Now})

	w := o.workingWindow()
	occGrid, err := grid.Build(tzName, req.Now, o.cfg.SearchDays, w, intervals)
	if err != nil {
		return nil, shared.NewScheduleError(400, "invalid_timezone", "failed to build occupancy grid", nil).Wrap(err)
	}

	duration := domain.ClampDuration(capture.EstimatedMinutes)

	// Step 3: compute plan, resolve deadline and scheduling window.
	planResult, err := constraint.ComputeSchedulingPlan(capture, req.Now, tzName, duration)
	if err != nil {
		return nil, shared.NewScheduleError(400, "invalid_timezone", "failed to compute scheduling plan", nil).Wrap(err)
	}
	plan, deadline := planResult.Plan, planResult.Deadline
	sched := schedulingWindow(plan, deadline, req.Now, horizonEnd)

	// Window-mode plans (routines included) carry their own bounds;
	// every other mode is searched inside the global working window.
	enforceWorkingWindow := plan.Mode != domain.PlanWindow

	opts := search.NextAvailableOptions{
		StartFrom:            sched.Start,
		ReferenceNow:         req.Now,
		EnforceWorkingWindow: enforceWorkingWindow,
		PreferredTimeOfDay:   capture.PreferredTimeOfDay,
		TimeZone:             tzName,
		WorkingWindow:        w,
	}

	env := requestEnv{
		req: req, tzName: tzName, w: w, enforceWorkingWindow: enforceWorkingWindow,
		intervals: intervals, events: events, ownedByID: ownedByID,
		grid: occGrid, plan: plan, deadline: deadline, sched: sched,
		duration: duration, opts: opts, ledger: ledger,
	}

	// Step 4: deadline elapsed?
	if deadline != nil && !deadline.After(req.Now) {
		if req.AllowLatePlacement {
			if res, ok := lateplacement.FindLateSlot(intervals, duration, *deadline, req.Now, opts); ok {
				return o.commitSlot(ctx, capture, res.Slot, singleChunk(res.Slot, true), domain.ActionScheduled, env)
			}
		}
		return nil, o.capacityError(shared.ReasonSlotExceedsDeadline, *capture, deadline, sched, intervals, duration)
	}

	// Step 5: user preferred slot, terminal per spec.md §4.10.
	if preferred := resolvePreferredSlot(req, plan, duration); preferred != nil {
		return o.preferredSlotPath(ctx, capture, *preferred, env)
	}

	// Steps 6-10: plan-candidate search, deadline-direct chunking,
	// grid-preemption, soft-deadline late-fallback, final late-or-fail.
	return o.scheduleWithoutPreferred(ctx, capture, env)
}

// requestEnv bundles the per-request data every step needs, avoiding a
// long parameter list threaded through each helper.
type requestEnv struct {
	req                  Request
	tzName               string
	w                    tz.WorkingWindow
	enforceWorkingWindow bool
	intervals            []domain.BusyInterval
	events               []domain.CalendarEvent
	ownedByID            map[string]domain.Capture
	grid                 domain.OccupancyGrid
	plan                 domain.SchedulingPlan
	deadline             *time.Time
	sched                domain.Window
	duration             int
	opts                 search.NextAvailableOptions
	ledger               *audit.Ledger
}

// schedulingWindow resolves [max(plan.window.start, now), plan.window.end
// ∪ deadline ∪ grid.end], per spec.md §4.9 step 3.
func schedulingWindow(plan domain.SchedulingPlan, deadline *time.Time, now, gridEnd time.Time) domain.Window {
	start := now
	end := gridEnd
	switch {
	case plan.WindowBounds != nil:
		if plan.WindowBounds.Start.After(start) {
			start = plan.WindowBounds.Start
		}
		end = plan.WindowBounds.End
	case deadline != nil:
		end = *deadline
	}
	return domain.Window{Start: start, End: end}
}

// resolvePreferredSlot picks the request-body preferred slot if given,
// else the plan's own preferred slot (mode=start), per spec.md §4.9
// step 5.
func resolvePreferredSlot(req Request, plan domain.SchedulingPlan, duration int) *domain.Window {
	if req.PreferredStart != nil {
		end := tz.AddMinutes(*req.PreferredStart, duration)
		if req.PreferredEnd != nil {
			end = *req.PreferredEnd
		}
		return &domain.Window{Start: *req.PreferredStart, End: end}
	}
	return plan.PreferredSlot
}

func singleChunk(slot domain.Window, late bool) []domain.Chunk {
	return []domain.Chunk{{Start: slot.Start, End: slot.End, Late: late}}
}

// toScheduleError normalizes any error into a *shared.ScheduleError,
// wrapping unrecognized errors as upstream failures.
func toScheduleError(err error) error {
	var se *shared.ScheduleError
	if errors.As(err, &se) {
		return se
	}
	return shared.NewScheduleError(502, "calendar_error", "calendar request failed", nil).Wrap(err)
}

// capacityError builds the spec.md §6 409 payload reporting the
// window's free-minute capacity alongside the failure reason.
func (o *Orchestrator) capacityError(reason string, capture domain.Capture, deadline *time.Time, sched domain.Window, intervals []domain.BusyInterval, duration int) error {
	free, dg, ext := capacityBreakdown(sched, intervals)
	details := map[string]any{
		"capture_id":              capture.ID,
		"window_start":            sched.Start,
		"window_end":              sched.End,
		"needed_minutes":          duration,
		"available_free_minutes":  free,
		"diaguru_minutes":         dg,
		"external_minutes":        ext,
	}
	if deadline != nil {
		details["deadline"] = *deadline
	}
	return shared.NewScheduleError(409, reason, fmt.Sprintf("no feasible placement for capture %s", capture.ID), details)
}

// capacityBreakdown sums free/owned/external minutes across sched by
// scanning 15-minute steps against intervals — a coarse approximation
// of occupancy used only for the 409 capacity report.
func capacityBreakdown(sched domain.Window, intervals []domain.BusyInterval) (free, owned, external int) {
	step := time.Duration(domain.GridCellMinutes) * time.Minute
	for cursor := sched.Start; cursor.Before(sched.End); cursor = cursor.Add(step) {
		end := cursor.Add(step)
		if end.After(sched.End) {
			end = sched.End
		}
		ext2, own2 := busy.Overlapping(cursor, end, intervals)
		switch {
		case len(own2) > 0:
			owned += int(end.Sub(cursor).Minutes())
		case len(ext2) > 0:
			external += int(end.Sub(cursor).Minutes())
		default:
			free += int(end.Sub(cursor).Minutes())
		}
	}
	return free, owned, external
}
