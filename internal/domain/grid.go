package domain

import "time"

// CellState is the occupancy label of a single OccupancyGrid cell
// (spec.md §3/§4.4).
type CellState string

const (
	CellFree     CellState = "free"
	CellExternal CellState = "external"
	CellOwned    CellState = "owned"
)

// GridCellMinutes is the fixed cell resolution (spec.md §6 SLOT_INCREMENT).
const GridCellMinutes = 15

// Cell is one 15-minute slice of the OccupancyGrid.
type Cell struct {
	Start     time.Time
	State     CellState
	CaptureID string // set when State == CellOwned
}

// OccupancyGrid is a discrete grid of 15-minute cells over a bounded
// search horizon, tagged free/external/owned (spec.md §3/§4.4).
type OccupancyGrid struct {
	Cells []Cell
}

// DayStats summarizes one day's worth of cells.
type DayStats struct {
	Day           time.Time
	FreeMinutes   int
	OwnedMinutes  int
	ExternalMinutes int
}

// WindowCandidate is a run of consecutive non-external-free cells
// returned by CollectWindowCandidates, annotated with the owned/free
// minute breakdown preemption needs to evaluate net gain.
type WindowCandidate struct {
	Start          time.Time
	End            time.Time
	FreeMinutes    int
	OwnedMinutes   int
	ExternalMinutes int
	OwnedCaptureIDs []string // distinct owned captures overlapping the window, in first-seen order
}
