// Package http exposes the scheduling engine over a small gin router:
// POST /schedule-capture drives the orchestrator, GET /capture-entries/:id
// reads back a capture's current state, and GET /healthz reports liveness.
package http

import (
	"time"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/orchestrator"
)

// scheduleRequest is the POST /schedule-capture wire body. Field names
// follow the external contract's camelCase; allowRebalance/allowLatePlacement
// accept their documented aliases via ShouldBindJSON on alternate tags.
type scheduleRequest struct {
	CaptureID string `json:"captureId" binding:"required"`
	Action    string `json:"action" binding:"required,oneof=schedule reschedule complete"`

	TimeZone              string `json:"timezone"`
	TimeZoneOffsetMinutes *int   `json:"timezoneOffsetMinutes"`

	PreferredStart *time.Time `json:"preferredStart"`
	PreferredEnd   *time.Time `json:"preferredEnd"`

	AllowOverlap   bool `json:"allowOverlap"`
	AllowRebalance bool `json:"allowRebalance"`
	AllowPreemption *bool `json:"allowPreemption"`

	AllowLatePlacement bool  `json:"allowLatePlacement"`
	AllowLate          *bool `json:"allowLate"`
	ScheduleLate       *bool `json:"scheduleLate"`

	// TelegramChatID, when set, is DMed a best-effort conflict notice
	// if the request lands on a preferred_conflict decision.
	TelegramChatID *int64 `json:"telegramChatId,omitempty"`
}

// resolveAllowRebalance applies the allowPreemption alias.
func (r scheduleRequest) resolveAllowRebalance() bool {
	if r.AllowPreemption != nil {
		return *r.AllowPreemption
	}
	return r.AllowRebalance
}

// resolveAllowLatePlacement applies the allowLate/scheduleLate aliases.
func (r scheduleRequest) resolveAllowLatePlacement() bool {
	if r.AllowLate != nil {
		return *r.AllowLate
	}
	if r.ScheduleLate != nil {
		return *r.ScheduleLate
	}
	return r.AllowLatePlacement
}

type chunkDTO struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Prime      bool      `json:"prime"`
	Late       bool      `json:"late"`
	Overlapped bool      `json:"overlapped"`
}

func chunksDTO(chunks []domain.Chunk) []chunkDTO {
	out := make([]chunkDTO, len(chunks))
	for i, c := range chunks {
		out[i] = chunkDTO{Start: c.Start, End: c.End, Prime: c.Prime, Late: c.Late, Overlapped: c.Overlapped}
	}
	return out
}

type captureDTO struct {
	ID                string     `json:"id"`
	OwnerID           string     `json:"ownerId"`
	Content           string     `json:"content"`
	Status            string     `json:"status"`
	PlannedStart      *time.Time `json:"plannedStart,omitempty"`
	PlannedEnd        *time.Time `json:"plannedEnd,omitempty"`
	ScheduledFor      *time.Time `json:"scheduledFor,omitempty"`
	CalendarEventID   *string    `json:"calendarEventId,omitempty"`
	CalendarEventETag *string    `json:"calendarEventEtag,omitempty"`
	FreezeUntil       *time.Time `json:"freezeUntil,omitempty"`
	RescheduleCount   int        `json:"rescheduleCount"`
	PlanID            *string    `json:"planId,omitempty"`
}

func captureToDTO(c domain.Capture) captureDTO {
	return captureDTO{
		ID: c.ID, OwnerID: c.OwnerID, Content: c.Content, Status: string(c.Status),
		PlannedStart: c.PlannedStart, PlannedEnd: c.PlannedEnd, ScheduledFor: c.ScheduledFor,
		CalendarEventID: c.CalendarEventID, CalendarEventETag: c.CalendarEventETag,
		FreezeUntil: c.FreezeUntil, RescheduleCount: c.RescheduleCount, PlanID: c.PlanID,
	}
}

type windowDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func windowToDTO(w domain.Window) windowDTO {
	return windowDTO{Start: w.Start, End: w.End}
}

type busyIntervalDTO struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	CaptureID string    `json:"captureId,omitempty"`
}

func busyIntervalsDTO(ivs []domain.BusyInterval) []busyIntervalDTO {
	out := make([]busyIntervalDTO, len(ivs))
	for i, iv := range ivs {
		out[i] = busyIntervalDTO{Start: iv.Start, End: iv.End, CaptureID: iv.CaptureID}
	}
	return out
}

type overlapOutcomeDTO struct {
	Prime bool `json:"prime"`
}

type commitResponse struct {
	Message     string      `json:"message"`
	Capture     captureDTO  `json:"capture"`
	PlanSummary string      `json:"planSummary"`
	Chunks      []chunkDTO  `json:"chunks"`
	Explanation string      `json:"explanation"`
	Overlap     *overlapOutcomeDTO `json:"overlap,omitempty"`
}

type conflictsDTO struct {
	External []busyIntervalDTO `json:"external"`
	Owned    []busyIntervalDTO `json:"owned"`
}

type decisionDTO struct {
	Type       string            `json:"type"`
	Message    string            `json:"message"`
	Preferred  windowDTO         `json:"preferred"`
	Conflicts  conflictsDTO      `json:"conflicts"`
	Suggestion *windowDTO        `json:"suggestion,omitempty"`
	Advisor    *advisorDTO       `json:"advisor,omitempty"`
}

type advisorDTO struct {
	Action  string     `json:"action"`
	Message string     `json:"message"`
	Slot    *windowDTO `json:"slot,omitempty"`
}

type conflictResponse struct {
	Message  string      `json:"message"`
	Capture  captureDTO  `json:"capture"`
	Decision decisionDTO `json:"decision"`
}

func resultToResponse(capture domain.Capture, res *orchestrator.Result) any {
	if res.Commit != nil {
		var overlapDTO *overlapOutcomeDTO
		if res.Commit.Overlap != nil {
			overlapDTO = &overlapOutcomeDTO{Prime: res.Commit.Overlap.Prime}
		}
		return commitResponse{
			Message:     "capture scheduled",
			Capture:     captureToDTO(res.Commit.Capture),
			PlanSummary: res.Commit.PlanSummary,
			Chunks:      chunksDTO(res.Commit.Chunks),
			Explanation: res.Commit.Explanation,
			Overlap:     overlapDTO,
		}
	}

	c := res.Conflict
	var suggestion *windowDTO
	if c.Suggestion != nil {
		w := windowToDTO(*c.Suggestion)
		suggestion = &w
	}
	var adv *advisorDTO
	if c.Advisor != nil {
		var slot *windowDTO
		if c.Advisor.Slot != nil {
			w := windowToDTO(*c.Advisor.Slot)
			slot = &w
		}
		adv = &advisorDTO{Action: string(c.Advisor.Action), Message: c.Advisor.Message, Slot: slot}
	}

	return conflictResponse{
		Message: c.Message,
		Capture: captureToDTO(capture),
		Decision: decisionDTO{
			Type:      "preferred_conflict",
			Message:   c.Message,
			Preferred: windowToDTO(c.Preferred),
			Conflicts: conflictsDTO{
				External: busyIntervalsDTO(c.Conflicts.External),
				Owned:    busyIntervalsDTO(c.Conflicts.Owned),
			},
			Suggestion: suggestion,
			Advisor:    adv,
		},
	}
}
