// Package calendar implements the CalendarGateway REST adapter
// (spec.md §6/§7), grounded on the teacher's OpenAI transcription
// adapter's call shape (internal/adapter/external/openai/stt.go): a
// thin wrapper over the shared retrying HTTP client with bearer auth.
// Unlike that adapter, token refresh and precondition-failed handling
// are first-class here, since spec.md §7 requires both.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"diaguru-scheduler/internal/calendargateway"
	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/platform/httpclient"
	"diaguru-scheduler/internal/shared"
	"diaguru-scheduler/pkg/retry"
)

var _ calendargateway.Gateway = (*Client)(nil)

// TokenSource resolves and refreshes the bearer token used to call the
// calendar provider on behalf of ownerID. Its lifecycle is the
// adapter's concern (spec.md §7: "its authentication and token refresh
// lifecycle is assumed").
type TokenSource interface {
	Token(ctx context.Context, ownerID string) (string, error)
	Refresh(ctx context.Context, ownerID string) (string, error)
}

// Client is the REST CalendarGateway adapter.
type Client struct {
	hc      *httpclient.Client
	baseURL string
	tokens  TokenSource
}

// NewClient builds a calendar Client.
func NewClient(hc *httpclient.Client, baseURL string, tokens TokenSource) *Client {
	return &Client{hc: hc, baseURL: strings.TrimRight(baseURL, "/"), tokens: tokens}
}

type wireEvent struct {
	ID          string            `json:"id,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	ETag        string            `json:"etag,omitempty"`
	Start       string            `json:"start,omitempty"`
	End         string            `json:"end,omitempty"`
	StartIsDate bool              `json:"start_is_date,omitempty"`
	EndIsDate   bool              `json:"end_is_date,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

func toWire(e domain.CalendarEvent) wireEvent {
	return wireEvent{
		ID:          e.ID,
		Summary:     e.Summary,
		ETag:        e.ETag,
		Start:       formatStamp(e.Start, e.StartIsDate),
		End:         formatStamp(e.End, e.EndIsDate),
		StartIsDate: e.StartIsDate,
		EndIsDate:   e.EndIsDate,
		Properties:  e.Properties,
	}
}

func formatStamp(t time.Time, isDate bool) string {
	if isDate {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

func fromWire(w wireEvent) (domain.CalendarEvent, error) {
	start, err := parseStamp(w.Start, w.StartIsDate)
	if err != nil {
		return domain.CalendarEvent{}, fmt.Errorf("calendar: parse start: %w", err)
	}
	end, err := parseStamp(w.End, w.EndIsDate)
	if err != nil {
		return domain.CalendarEvent{}, fmt.Errorf("calendar: parse end: %w", err)
	}
	return domain.CalendarEvent{
		ID: w.ID, Summary: w.Summary, ETag: w.ETag,
		Start: start, End: end, StartIsDate: w.StartIsDate, EndIsDate: w.EndIsDate,
		Properties: w.Properties,
	}, nil
}

func parseStamp(s string, isDate bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if isDate {
		return time.Parse("2006-01-02", s)
	}
	return time.Parse(time.RFC3339, s)
}

// doAuthed issues req with the current token for ownerID, refreshing
// once and retrying on a single 401 (spec.md §7: "at most one token
// refresh attempt"). On persistent auth failure it returns a
// ScheduleError{400, needs_reconnect:true}.
func (c *Client) doAuthed(ctx context.Context, ownerID string, build func() (*http.Request, error)) (*http.Response, error) {
	token, err := c.tokens.Token(ctx, ownerID)
	if err != nil {
		return nil, shared.NewScheduleError(400, "calendar_unlinked", "calendar account not linked", nil).Wrap(err)
	}

	attempt := func(tok string) (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		return c.hc.Do(ctx, req)
	}

	resp, err := attempt(token)
	if err != nil {
		return nil, shared.NewScheduleError(502, "calendar_unreachable", "calendar request failed", nil).Wrap(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	refreshed, err := c.tokens.Refresh(ctx, ownerID)
	if err != nil {
		return nil, shared.NewScheduleError(400, "needs_reconnect", "calendar auth expired", map[string]any{"needs_reconnect": true}).Wrap(err)
	}
	resp, err = attempt(refreshed)
	if err != nil {
		return nil, shared.NewScheduleError(502, "calendar_unreachable", "calendar request failed", nil).Wrap(err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, shared.NewScheduleError(400, "needs_reconnect", "calendar auth expired", map[string]any{"needs_reconnect": true})
	}
	return resp, nil
}

// List returns events in [from, to), retried via pkg/retry since reads
// are idempotent (the teacher's httpclient already retries transient
// network failures and 5xx; this adds a bounded outer retry for
// anything that slips through, e.g. a dropped connection mid-refresh).
func (c *Client) List(ctx context.Context, ownerID string, from, to time.Time) ([]domain.CalendarEvent, error) {
	var out []domain.CalendarEvent
	err := retry.RetryWithAttempts(ctx, 2, func(ctx context.Context) error {
		q := url.Values{"from": {from.Format(time.RFC3339)}, "to": {to.Format(time.RFC3339)}}
		resp, err := c.doAuthed(ctx, ownerID, func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events?"+q.Encode(), nil)
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := checkStatus(resp); err != nil {
			return err
		}
		var wire struct {
			Events []wireEvent `json:"events"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return fmt.Errorf("calendar: decode list response: %w", err)
		}
		events := make([]domain.CalendarEvent, 0, len(wire.Events))
		for _, w := range wire.Events {
			e, err := fromWire(w)
			if err != nil {
				return err
			}
			events = append(events, e)
		}
		out = events
		return nil
	})
	return out, err
}

// Get fetches one event by id, used to refresh a stale etag before a
// precondition-failed retry (spec.md §7).
func (c *Client) Get(ctx context.Context, ownerID, eventID string) (domain.CalendarEvent, error) {
	resp, err := c.doAuthed(ctx, ownerID, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events/"+url.PathEscape(eventID), nil)
	})
	if err != nil {
		return domain.CalendarEvent{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return domain.CalendarEvent{}, shared.NewScheduleError(404, "event_not_found", "calendar event not found", nil)
	}
	if err := checkStatus(resp); err != nil {
		return domain.CalendarEvent{}, err
	}
	var w wireEvent
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return domain.CalendarEvent{}, fmt.Errorf("calendar: decode get response: %w", err)
	}
	return fromWire(w)
}

// Create creates an owned event. Never retried silently (spec.md §7:
// "create-event is never retried silently (double-booking hazard)").
func (c *Client) Create(ctx context.Context, ownerID string, ev domain.CalendarEvent) (domain.CalendarEvent, error) {
	body, err := json.Marshal(toWire(ev))
	if err != nil {
		return domain.CalendarEvent{}, fmt.Errorf("calendar: encode create body: %w", err)
	}
	resp, err := c.doAuthed(ctx, ownerID, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return domain.CalendarEvent{}, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return domain.CalendarEvent{}, err
	}
	var w wireEvent
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		return domain.CalendarEvent{}, fmt.Errorf("calendar: decode create response: %w", err)
	}
	return fromWire(w)
}

// Delete removes an event, sending etag as the If-Match precondition.
// On a 412 it refetches the event's current etag and retries exactly
// once (spec.md §6/§7).
func (c *Client) Delete(ctx context.Context, ownerID, eventID, etag string) error {
	if err := c.deleteOnce(ctx, ownerID, eventID, etag); err == nil {
		return nil
	} else if !isPreconditionFailed(err) {
		return err
	}

	fresh, getErr := c.Get(ctx, ownerID, eventID)
	if getErr != nil {
		return getErr
	}
	return c.deleteOnce(ctx, ownerID, eventID, fresh.ETag)
}

func (c *Client) deleteOnce(ctx context.Context, ownerID, eventID, etag string) error {
	resp, err := c.doAuthed(ctx, ownerID, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/events/"+url.PathEscape(eventID), nil)
		if err != nil {
			return nil, err
		}
		if etag != "" {
			req.Header.Set("If-Match", etag)
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func isPreconditionFailed(err error) bool {
	var se *shared.ScheduleError
	return err != nil && errors.As(err, &se) && se.Status == http.StatusPreconditionFailed
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusPreconditionFailed:
		return shared.NewScheduleError(412, "precondition_failed", "calendar event version stale", map[string]any{"body": string(b)})
	case http.StatusNotFound:
		return shared.NewScheduleError(404, "event_not_found", "calendar event not found", nil)
	default:
		return shared.NewScheduleError(502, "calendar_error", fmt.Sprintf("calendar: status %d", resp.StatusCode), map[string]any{"body": string(b)})
	}
}
