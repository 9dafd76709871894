package domain

import "time"

// Chunk is one ordered segment of a committed placement (spec.md §3/§4.7).
type Chunk struct {
	Start      time.Time
	End        time.Time
	Prime      bool // highest-priority participant in an overlapped slot
	Late       bool // committed after the capture's deadline
	Overlapped bool // co-scheduled with another owned capture at the same wall time
}

// Minutes returns the chunk's duration in minutes.
func (c Chunk) Minutes() int {
	return int(c.End.Sub(c.Start).Minutes())
}

// TotalMinutes sums the duration of a chunk sequence.
func TotalMinutes(chunks []Chunk) int {
	total := 0
	for _, c := range chunks {
		total += c.Minutes()
	}
	return total
}
