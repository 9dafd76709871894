// Package chunking implements spec.md §4.7: splitting a duration into a
// sequence of segments honoring min-chunk and max-splits, and placing
// those segments across a bounded range.
package chunking

import (
	"time"

	"diaguru-scheduler/internal/busy"
	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/tz"
)

// DefaultTargetChunkMinutes is the TARGET_CHUNK default from spec.md §6.
const DefaultTargetChunkMinutes = 50

// GenerateChunkDurations rounds total up to a 15-minute multiple, then
// — if splitting is allowed — divides it into a bounded number of
// chunks, each at least minChunk minutes, distributing the remainder
// across the first chunks. Per spec.md §4.7.
func GenerateChunkDurations(total, minChunk, maxSplits int, allowSplit bool) []int {
	rounded := roundUpToIncrement(total, domain.GridCellMinutes)
	if !allowSplit || minChunk <= 0 {
		return []int{rounded}
	}

	target := DefaultTargetChunkMinutes
	byMinChunk := rounded / minChunk
	byTarget := ceilDiv(rounded, target)
	count := minInt(byMinChunk, maxSplits, byTarget)
	if count < 1 {
		count = 1
	}

	totalIncrements := rounded / domain.GridCellMinutes
	baseIncrements := totalIncrements / count
	remainderIncrements := totalIncrements % count

	durations := make([]int, count)
	for i := 0; i < count; i++ {
		inc := baseIncrements
		if i < remainderIncrements {
			inc++
		}
		durations[i] = inc * domain.GridCellMinutes
	}

	for idx, d := range durations {
		if d < minChunk {
			durations[idx] = minChunk
		}
	}
	return durations
}

func roundUpToIncrement(v, increment int) int {
	if increment <= 0 {
		return v
	}
	if v%increment == 0 {
		return v
	}
	return (v/increment + 1) * increment
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// Placement is one committed chunk placement.
type Placement struct {
	Start time.Time
	End   time.Time
}

// PlaceChunksWithinRange greedily places each chunk duration in the
// earliest free sub-slot after the previous chunk's end, rejecting the
// whole plan if any chunk cannot fit before re. Per spec.md §4.7.
func PlaceChunksWithinRange(durations []int, intervals []domain.BusyInterval, rs, re time.Time, tzName string, enforceWorkingWindow bool, w tz.WorkingWindow) ([]Placement, []domain.BusyInterval, bool) {
	placements := make([]Placement, 0, len(durations))
	augmented := append([]domain.BusyInterval{}, intervals...)
	cursor := rs

	for _, d := range durations {
		slotStart, ok := findEarliestFreeSubSlot(cursor, re, d, augmented, tzName, enforceWorkingWindow, w)
		if !ok {
			return nil, intervals, false
		}
		slotEnd := tz.AddMinutes(slotStart, d)
		if slotEnd.After(re) {
			return nil, intervals, false
		}
		placements = append(placements, Placement{Start: slotStart, End: slotEnd})
		augmented = busy.RegisterInterval(augmented, domain.BusyInterval{Start: slotStart, End: slotEnd})
		cursor = slotEnd
	}
	return placements, augmented, true
}

func findEarliestFreeSubSlot(from, upTo time.Time, durationMinutes int, intervals []domain.BusyInterval, tzName string, enforceWorkingWindow bool, w tz.WorkingWindow) (time.Time, bool) {
	cursor := from
	for !cursor.After(upTo.Add(-time.Duration(durationMinutes) * time.Minute)) {
		end := tz.AddMinutes(cursor, durationMinutes)
		if enforceWorkingWindow {
			ok, err := tz.WithinWorkingWindow(tzName, cursor, end, w)
			if err != nil {
				return time.Time{}, false
			}
			if !ok {
				cursor = cursor.Add(domain.GridCellMinutes * time.Minute)
				continue
			}
		}
		if busy.IsSlotFree(cursor, end, intervals) {
			return cursor, true
		}
		cursor = cursor.Add(domain.GridCellMinutes * time.Minute)
	}
	return time.Time{}, false
}
