// Package lateplacement implements spec.md §4.13: scheduling past a
// deadline when the user authorizes it.
package lateplacement

import (
	"time"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/search"
)

// Result is a committed late placement.
type Result struct {
	Slot domain.Window
}

// FindLateSlot computes the earliest free slot at or after
// max(deadlineEnd, now), per spec.md §4.13.
func FindLateSlot(intervals []domain.BusyInterval, durationMinutes int, deadlineEnd, now time.Time, opts search.NextAvailableOptions) (Result, bool) {
	startFrom := deadlineEnd
	if now.After(startFrom) {
		startFrom = now
	}
	w, ok := search.FindLatePlacementSlot(intervals, durationMinutes, startFrom, opts)
	if !ok {
		return Result{}, false
	}
	return Result{Slot: w}, true
}

// ApplyLateChunks marks every chunk in chunks as late=true, per spec.md
// §4.13's "commit with chunks tagged late=true".
func ApplyLateChunks(chunks []domain.Chunk) []domain.Chunk {
	out := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.Late = true
		out[i] = c
	}
	return out
}

// ClearFreeze clears freeze_until on the capture, per spec.md §4.13
// ("freeze_until cleared").
func ClearFreeze(c *domain.Capture) {
	c.FreezeUntil = nil
}

// Reason is the audit note spec.md §4.13 requires ("Always records a
// late reason in the decision audit").
const Reason = "late"
