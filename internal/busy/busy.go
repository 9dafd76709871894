// Package busy implements spec.md §4.3: expanding calendar events into
// buffered intervals and answering "is this slot free?".
package busy

import (
	"sort"
	"time"

	"diaguru-scheduler/internal/domain"
)

// DefaultBuffer and CompressedBuffer are the BUFFER / COMPRESSED_BUFFER
// constants from spec.md §6.
const (
	DefaultBuffer    = 10 * time.Minute
	CompressedBuffer = 5 * time.Minute
)

// ExpandOptions configures ComputeBusyIntervals.
type ExpandOptions struct {
	Buffer time.Duration
	Now    time.Time
}

// ComputeBusyIntervals expands events into a sorted list of buffered
// intervals. In-progress events (Start <= now < End) get zero buffer on
// both sides, per spec.md §3 BusyInterval.
func ComputeBusyIntervals(events []domain.CalendarEvent, opts ExpandOptions) []domain.BusyInterval {
	intervals := make([]domain.BusyInterval, 0, len(events))
	for _, ev := range events {
		if ev.StartIsDate || ev.EndIsDate {
			continue
		}
		buffer := opts.Buffer
		if !ev.Start.After(opts.Now) && opts.Now.Before(ev.End) {
			buffer = 0
		}
		intervals = append(intervals, domain.BusyInterval{
			Start:     ev.Start.Add(-buffer),
			End:       ev.End.Add(buffer),
			SourceID:  ev.ID,
			Owned:     ev.IsOwned(),
			CaptureID: ev.CaptureID(),
		})
	}
	sortIntervals(intervals)
	return intervals
}

func sortIntervals(intervals []domain.BusyInterval) {
	sort.Slice(intervals, func(i, j int) bool {
		if intervals[i].Start.Equal(intervals[j].Start) {
			return intervals[i].End.Before(intervals[j].End)
		}
		return intervals[i].Start.Before(intervals[j].Start)
	})
}

// IsSlotFree reports whether no interval in intervals overlaps [s, e).
func IsSlotFree(s, e time.Time, intervals []domain.BusyInterval) bool {
	for _, iv := range intervals {
		if iv.Overlaps(s, e) {
			return false
		}
	}
	return true
}

// RegisterInterval inserts a newly committed buffered slot and
// re-sorts, per spec.md §4.3 registerInterval.
func RegisterInterval(intervals []domain.BusyInterval, slot domain.BusyInterval) []domain.BusyInterval {
	out := append(append([]domain.BusyInterval{}, intervals...), slot)
	sortIntervals(out)
	return out
}

// Overlapping returns the subset of intervals that overlap [s, e),
// split into external and owned groups — the "conflict lists" spec.md
// §4.10 collects before evaluating overlap/preemption.
func Overlapping(s, e time.Time, intervals []domain.BusyInterval) (external, owned []domain.BusyInterval) {
	for _, iv := range intervals {
		if !iv.Overlaps(s, e) {
			continue
		}
		if iv.Owned {
			owned = append(owned, iv)
		} else {
			external = append(external, iv)
		}
	}
	return external, owned
}
