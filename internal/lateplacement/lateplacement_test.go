package lateplacement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/search"
)

func TestFindLateSlot_StartsAfterDeadline(t *testing.T) {
	deadline := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	res, ok := FindLateSlot(nil, 30, deadline, now, search.NextAvailableOptions{})
	require.True(t, ok)
	assert.True(t, res.Slot.Start.After(deadline))
}

func TestFindLateSlot_UsesNowWhenAfterDeadline(t *testing.T) {
	deadline := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	res, ok := FindLateSlot(nil, 30, deadline, now, search.NextAvailableOptions{})
	require.True(t, ok)
	assert.True(t, res.Slot.Start.After(now))
}

func TestApplyLateChunks_MarksLate(t *testing.T) {
	chunks := []domain.Chunk{{}, {}}
	out := ApplyLateChunks(chunks)
	for _, c := range out {
		assert.True(t, c.Late)
	}
}

func TestClearFreeze(t *testing.T) {
	freeze := time.Now().Add(time.Hour)
	c := &domain.Capture{FreezeUntil: &freeze}
	ClearFreeze(c)
	assert.Nil(t, c.FreezeUntil)
}
