package domain

import (
	"strconv"
	"time"
)

// CalendarEvent is the wire shape the CalendarGateway exchanges with
// the external provider (spec.md §3/§6). Start and End may represent
// either a wall-datetime or an all-day date; StartIsDate/EndIsDate
// distinguish the two so callers don't have to sniff zero values.
type CalendarEvent struct {
	ID          string
	Summary     string
	ETag        string // opaque version tag, required for precondition-checked deletes
	Start       time.Time
	End         time.Time
	StartIsDate bool
	EndIsDate   bool
	Properties  map[string]string
}

// diaGuruProp marks an event as owned by this scheduler.
const diaGuruProp = "diaGuru"

// IsOwned reports whether the event was created by this scheduler
// (the "diaGuru" event convention from spec.md §3).
func (e CalendarEvent) IsOwned() bool {
	return e.Properties[diaGuruProp] == "true"
}

// CaptureID returns the capture_id private property of an owned event.
func (e CalendarEvent) CaptureID() string {
	return e.Properties["capture_id"]
}

// OwnedEventProperties builds the private-properties map the
// orchestrator writes when it creates a calendar event for a capture
// (spec.md §6 wire contract).
func OwnedEventProperties(captureID, actionID string, prioritySnapshot float64, planID string) map[string]string {
	props := map[string]string{
		diaGuruProp:  "true",
		"capture_id": captureID,
		"action_id":  actionID,
	}
	if planID != "" {
		props["plan_id"] = planID
	}
	props["priority_snapshot"] = formatFloat(prioritySnapshot)
	return props
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

// BusyInterval is a half-open [Start, End) interval produced by
// expanding a calendar event with a buffer (spec.md §4.3). CaptureID is
// empty for external events.
type BusyInterval struct {
	Start      time.Time
	End        time.Time
	SourceID   string // calendar event id this interval was derived from
	Owned      bool
	CaptureID  string // set when Owned
}

// Overlaps reports whether the interval overlaps [s, e).
func (b BusyInterval) Overlaps(s, e time.Time) bool {
	return b.Start.Before(e) && s.Before(b.End)
}
