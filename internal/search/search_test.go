package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/tz"
)

func TestFindNextAvailableSlot_ContinuousSweepFindsGap(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	busyIntervals := []domain.BusyInterval{
		{Start: start, End: start.Add(30 * time.Minute)},
	}
	w, ok := FindNextAvailableSlot(busyIntervals, 30, NextAvailableOptions{
		StartFrom: start,
	})
	require.True(t, ok)
	assert.True(t, w.Start.Equal(start.Add(30 * time.Minute)))
}

func TestFindNextAvailableSlot_WorkingWindowSweepSkipsNight(t *testing.T) {
	start := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)
	w, ok := FindNextAvailableSlot(nil, 30, NextAvailableOptions{
		StartFrom:            start,
		EnforceWorkingWindow: true,
		TimeZone:             "UTC",
		WorkingWindow:        tz.DefaultWorkingWindow(),
	})
	require.True(t, ok)
	assert.Equal(t, 8, w.Start.Hour())
	assert.Equal(t, 2, w.Start.Day())
}

func TestFindNextAvailableSlot_PreferredBand(t *testing.T) {
	start := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	evening := domain.TimeOfDayEvening
	w, ok := FindNextAvailableSlot(nil, 30, NextAvailableOptions{
		StartFrom:          start,
		PreferredTimeOfDay: &evening,
		TimeZone:           "UTC",
	})
	require.True(t, ok)
	assert.GreaterOrEqual(t, w.Start.Hour(), 17)
	assert.Less(t, w.Start.Hour(), 21)
}

func TestFindSlotBeforeDeadline(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	deadline := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	w, ok := FindSlotBeforeDeadline(nil, 30, deadline, now)
	require.True(t, ok)
	assert.True(t, w.Start.Equal(now))
	assert.False(t, w.End.After(deadline))
}

func TestFindSlotBeforeDeadline_NoRoom(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	deadline := time.Date(2024, 6, 1, 9, 10, 0, 0, time.UTC)
	_, ok := FindSlotBeforeDeadline(nil, 30, deadline, now)
	assert.False(t, ok)
}

func TestFindSlotWithinWindow_ClampsToNow(t *testing.T) {
	now := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	ws := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	we := time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)
	w, ok := FindSlotWithinWindow(nil, 30, ws, we, now)
	require.True(t, ok)
	assert.True(t, w.Start.Equal(now))
}

func TestFindLatePlacementSlot_StartsAfterDeadline(t *testing.T) {
	deadline := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	w, ok := FindLatePlacementSlot(nil, 30, deadline, NextAvailableOptions{})
	require.True(t, ok)
	assert.True(t, w.Start.After(deadline))
}

func TestSweepRange_TieBreakEarliestStart(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	w, ok := sweepRange(nil, 15, start, start.Add(2*time.Hour))
	require.True(t, ok)
	assert.True(t, w.Start.Equal(start))
}
