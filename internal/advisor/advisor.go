// Package advisor implements spec.md §4.14: when no acceptable
// placement exists, propose a human-readable decision, optionally
// consulting an external LLM.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/platform/httpclient"
	"diaguru-scheduler/internal/tz"
)

// Action is the advisor's proposed next step.
type Action string

const (
	ActionSuggestSlot Action = "suggest_slot"
	ActionAskOverlap  Action = "ask_overlap"
	ActionDefer       Action = "defer"
)

// Decision is the advisor's structured output, per spec.md §4.14's JSON
// contract `{action, message, slot?}`.
type Decision struct {
	Action  Action         `json:"action"`
	Message string         `json:"message"`
	Slot    *domain.Window `json:"slot,omitempty"`
}

// Context is the structured input handed to the advisor: target,
// preferred slot, external and owned conflicts, suggestion and
// timezone. It carries no separate busy summary beyond the conflict
// lists.
type Context struct {
	Target        domain.Capture
	PreferredSlot domain.Window
	External      []domain.BusyInterval
	Owned         []domain.BusyInterval
	Suggestion    *domain.Window
	TimeZone      string
}

// Baseline produces the non-LLM decision: a deterministic,
// human-readable message derived from the conflict context. This is
// always returned when no LLM endpoint is configured, and as the
// fallback when the LLM call fails (advisor failure is non-fatal).
func Baseline(c Context) Decision {
	if c.Suggestion != nil {
		return Decision{
			Action:  ActionSuggestSlot,
			Message: fmt.Sprintf("%q conflicts with %d existing event(s); next free slot starts %s.", c.Target.Content, len(c.External)+len(c.Owned), c.Suggestion.Start.Format(time.RFC3339)),
			Slot:    c.Suggestion,
		}
	}
	if len(c.External) == 0 && len(c.Owned) > 0 {
		return Decision{
			Action:  ActionAskOverlap,
			Message: fmt.Sprintf("%q overlaps only with your own tasks; share the slot?", c.Target.Content),
		}
	}
	return Decision{
		Action:  ActionDefer,
		Message: fmt.Sprintf("No feasible placement found for %q; deferring to you.", c.Target.Content),
	}
}

// Client calls an LLM endpoint to refine the baseline decision, per
// spec.md §4.14. Built on the shared retrying HTTP client, the same
// wire shape the teacher's OpenAI transcription adapter uses: POST a
// JSON body, bearer auth, bounded by the caller's context.
type Client struct {
	hc      *httpclient.Client
	baseURL string
	model   string
	apiKey  string
	log     *slog.Logger
}

// NewClient builds an advisor Client.
func NewClient(hc *httpclient.Client, baseURL, model, apiKey string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{hc: hc, baseURL: strings.TrimRight(baseURL, "/"), model: model, apiKey: apiKey, log: log}
}

type advisorRequest struct {
	Model   string  `json:"model"`
	Context Context `json:"context"`
}

// Advise invokes the LLM endpoint with the structured context and
// validates any proposed slot against the working window and busy
// intervals before returning it, per spec.md §4.14. On any failure it
// logs and returns the baseline decision — advisor failure is
// non-fatal.
func (c *Client) Advise(ctx context.Context, advCtx Context, w tz.WorkingWindow, enforceWorkingWindow bool) Decision {
	baseline := Baseline(advCtx)
	if c == nil {
		return baseline
	}

	body, err := json.Marshal(advisorRequest{Model: c.model, Context: advCtx})
	if err != nil {
		c.log.Warn("advisor: marshal request failed", slog.Any("error", err))
		return baseline
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/advise", bytes.NewReader(body))
	if err != nil {
		c.log.Warn("advisor: build request failed", slog.Any("error", err))
		return baseline
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(ctx, req)
	if err != nil {
		c.log.Warn("advisor: request failed", slog.Any("error", err))
		return baseline
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		c.log.Warn("advisor: non-2xx response", slog.Int("status", resp.StatusCode), slog.String("body", string(b)))
		return baseline
	}

	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		c.log.Warn("advisor: decode response failed", slog.Any("error", err))
		return baseline
	}

	if decision.Slot != nil && !validSlot(*decision.Slot, advCtx, w, enforceWorkingWindow) {
		decision.Slot = nil
		if decision.Action == ActionSuggestSlot {
			decision.Action = ActionDefer
		}
	}
	if decision.Message == "" {
		decision.Message = baseline.Message
	}
	return decision
}

func validSlot(slot domain.Window, advCtx Context, w tz.WorkingWindow, enforceWorkingWindow bool) bool {
	if !slot.Valid() {
		return false
	}
	if enforceWorkingWindow {
		ok, err := tz.WithinWorkingWindow(advCtx.TimeZone, slot.Start, slot.End, w)
		if err != nil || !ok {
			return false
		}
	}
	for _, iv := range advCtx.External {
		if iv.Overlaps(slot.Start, slot.End) {
			return false
		}
	}
	for _, iv := range advCtx.Owned {
		if iv.Overlaps(slot.Start, slot.End) {
			return false
		}
	}
	return true
}
