package store

import (
	"encoding/json"
	"fmt"

	"diaguru-scheduler/internal/domain"
)

// encodeNotes/decodeNotes round-trip domain.SchedulingNotes through the
// scheduling_notes JSONB column, keeping the PreviousNote blob intact
// per spec.md §9's "dynamic shape in scheduling_notes" note.
func encodeNotes(n domain.SchedulingNotes) ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode scheduling_notes: %w", err)
	}
	return b, nil
}

func decodeNotes(b []byte) (domain.SchedulingNotes, error) {
	var n domain.SchedulingNotes
	if len(b) == 0 {
		return n, nil
	}
	if err := json.Unmarshal(b, &n); err != nil {
		return n, fmt.Errorf("decode scheduling_notes: %w", err)
	}
	return n, nil
}

func encodeSnapshot(s domain.CaptureSnapshot) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

func decodeSnapshot(b []byte) (domain.CaptureSnapshot, error) {
	var s domain.CaptureSnapshot
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}
