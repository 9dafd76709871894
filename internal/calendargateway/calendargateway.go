// Package calendargateway defines the CalendarGateway port (spec.md
// §6: "an abstract CalendarGateway exposing list/create/delete/get")
// and the owned-event summary/properties builders. The REST adapter
// lives in internal/adapter/external/calendar.
package calendargateway

import (
	"context"
	"time"

	"diaguru-scheduler/internal/domain"
)

// Gateway is the port the orchestrator depends on. Authentication and
// token refresh lifecycle are the adapter's concern (spec.md §7:
// "its authentication and token refresh lifecycle is assumed").
type Gateway interface {
	List(ctx context.Context, ownerID string, from, to time.Time) ([]domain.CalendarEvent, error)
	Get(ctx context.Context, ownerID, eventID string) (domain.CalendarEvent, error)
	Create(ctx context.Context, ownerID string, ev domain.CalendarEvent) (domain.CalendarEvent, error)
	// Delete removes an event, sending etag as the precondition (spec.md
	// §6: "Deletion must send the version tag as precondition"). On a
	// precondition failure the implementation itself refetches the event
	// for its current etag and retries the delete once (spec.md §4.10/§7).
	Delete(ctx context.Context, ownerID, eventID, etag string) error
}

// maxSummaryLen is the 200-character cap spec.md §6 puts on the
// "[DG] "+content owned-event summary.
const maxSummaryLen = 200

// dgPrefix marks an owned event's summary, per spec.md §6.
const dgPrefix = "[DG] "

// BuildSummary truncates content to fit the owned-event summary
// convention `"[DG] "+content` truncated to 200 characters total.
func BuildSummary(content string) string {
	s := dgPrefix + content
	if len(s) <= maxSummaryLen {
		return s
	}
	return s[:maxSummaryLen]
}

// OwnedEvent builds the CalendarEvent the orchestrator sends to Create
// when it commits a placement, carrying the owned-event private
// properties spec.md §6 defines.
func OwnedEvent(content string, start, end time.Time, captureID, actionID string, prioritySnapshot float64, planID string) domain.CalendarEvent {
	return domain.CalendarEvent{
		Summary:    BuildSummary(content),
		Start:      start,
		End:        end,
		Properties: domain.OwnedEventProperties(captureID, actionID, prioritySnapshot, planID),
	}
}
