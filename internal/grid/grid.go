// Package grid implements spec.md §4.4: a fixed-resolution occupancy
// grid over the search horizon, tagging each 15-minute cell
// free/external/owned, with per-day stats and sliding-window scans.
package grid

import (
	"math"
	"time"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/tz"
)

// Build constructs an OccupancyGrid spanning `days` working-window days
// starting at start's local calendar day, per spec.md §4.4. Cells are
// labeled by the overlapping interval of highest dominance: owned beats
// external when both overlap a cell; otherwise whichever interval
// covers more of the cell wins.
func Build(tzName string, start time.Time, days int, w tz.WorkingWindow, busy []domain.BusyInterval) (domain.OccupancyGrid, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return domain.OccupancyGrid{}, err
	}
	local := start.In(loc)

	var cells []domain.Cell
	for d := 0; d < days; d++ {
		day := time.Date(local.Year(), local.Month(), local.Day()+d, 0, 0, 0, 0, loc)
		dayStart := tz.StartOfWorkingDay(day, w)
		dayEnd := tz.EndOfWorkingDay(day, w)
		for cursor := dayStart; cursor.Before(dayEnd); cursor = cursor.Add(domain.GridCellMinutes * time.Minute) {
			cellEnd := cursor.Add(domain.GridCellMinutes * time.Minute)
			state, captureID := dominantState(cursor, cellEnd, busy)
			cells = append(cells, domain.Cell{Start: cursor, State: state, CaptureID: captureID})
		}
	}
	return domain.OccupancyGrid{Cells: cells}, nil
}

func dominantState(s, e time.Time, busy []domain.BusyInterval) (domain.CellState, string) {
	var ownedBest, externalBest time.Duration
	var ownedID string
	for _, iv := range busy {
		overlap := overlapDuration(s, e, iv.Start, iv.End)
		if overlap <= 0 {
			continue
		}
		if iv.Owned {
			if overlap > ownedBest {
				ownedBest = overlap
				ownedID = iv.CaptureID
			}
		} else if overlap > externalBest {
			externalBest = overlap
		}
	}
	switch {
	case ownedBest > 0:
		return domain.CellOwned, ownedID
	case externalBest > 0:
		return domain.CellExternal, ""
	default:
		return domain.CellFree, ""
	}
}

func overlapDuration(s1, e1, s2, e2 time.Time) time.Duration {
	start := s1
	if s2.After(start) {
		start = s2
	}
	end := e1
	if e2.Before(end) {
		end = e2
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// DayStats computes per-day free/owned/external minute totals.
func DayStats(g domain.OccupancyGrid) []domain.DayStats {
	var out []domain.DayStats
	var cur *domain.DayStats
	for _, c := range g.Cells {
		day := startOfDay(c.Start)
		if cur == nil || !cur.Day.Equal(day) {
			out = append(out, domain.DayStats{Day: day})
			cur = &out[len(out)-1]
		}
		switch c.State {
		case domain.CellFree:
			cur.FreeMinutes += domain.GridCellMinutes
		case domain.CellOwned:
			cur.OwnedMinutes += domain.GridCellMinutes
		case domain.CellExternal:
			cur.ExternalMinutes += domain.GridCellMinutes
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// CollectGridWindowCandidates returns non-external-free windows of
// length ceil(duration/15) consecutive cells within [ws, we], annotated
// with owned/external/free minute breakdowns and the distinct owned
// captures touched, per spec.md §4.4. Used by preemption to enumerate
// target placements.
func CollectGridWindowCandidates(g domain.OccupancyGrid, durationMinutes int, ws, we time.Time, limit int) []domain.WindowCandidate {
	cellsNeeded := int(math.Ceil(float64(durationMinutes) / float64(domain.GridCellMinutes)))
	if cellsNeeded < 1 {
		cellsNeeded = 1
	}

	inRange := make([]domain.Cell, 0, len(g.Cells))
	for _, c := range g.Cells {
		if !c.Start.Before(ws) && c.Start.Before(we) {
			inRange = append(inRange, c)
		}
	}

	var out []domain.WindowCandidate
	for i := 0; i+cellsNeeded <= len(inRange); i++ {
		window := inRange[i : i+cellsNeeded]
		if !contiguous(window) {
			continue
		}
		hasExternal := false
		cand := domain.WindowCandidate{Start: window[0].Start, End: window[len(window)-1].Start.Add(domain.GridCellMinutes * time.Minute)}
		seen := map[string]bool{}
		for _, c := range window {
			switch c.State {
			case domain.CellFree:
				cand.FreeMinutes += domain.GridCellMinutes
			case domain.CellOwned:
				cand.OwnedMinutes += domain.GridCellMinutes
				if c.CaptureID != "" && !seen[c.CaptureID] {
					seen[c.CaptureID] = true
					cand.OwnedCaptureIDs = append(cand.OwnedCaptureIDs, c.CaptureID)
				}
			case domain.CellExternal:
				cand.ExternalMinutes += domain.GridCellMinutes
				hasExternal = true
			}
		}
		if hasExternal {
			continue
		}
		out = append(out, cand)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func contiguous(cells []domain.Cell) bool {
	for i := 1; i < len(cells); i++ {
		if !cells[i].Start.Equal(cells[i-1].Start.Add(domain.GridCellMinutes * time.Minute)) {
			return false
		}
	}
	return true
}
