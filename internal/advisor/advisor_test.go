package advisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/tz"
)

func TestBaseline_SuggestsSlotWhenAvailable(t *testing.T) {
	suggestion := &domain.Window{
		Start: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
	}
	d := Baseline(Context{Target: domain.Capture{Content: "write report"}, Suggestion: suggestion})
	assert.Equal(t, ActionSuggestSlot, d.Action)
	assert.Equal(t, suggestion, d.Slot)
}

func TestBaseline_AsksOverlapWhenOnlyOwnedConflicts(t *testing.T) {
	d := Baseline(Context{
		Target: domain.Capture{Content: "call mom"},
		Owned:  []domain.BusyInterval{{}},
	})
	assert.Equal(t, ActionAskOverlap, d.Action)
}

func TestBaseline_DefersWhenNothingElseApplies(t *testing.T) {
	d := Baseline(Context{Target: domain.Capture{Content: "gym"}})
	assert.Equal(t, ActionDefer, d.Action)
}

func TestAdvise_NilClientReturnsBaseline(t *testing.T) {
	var c *Client
	d := c.Advise(context.Background(), Context{Target: domain.Capture{Content: "x"}}, tz.DefaultWorkingWindow(), false)
	assert.Equal(t, ActionDefer, d.Action)
}

func TestValidSlot_RejectsOverlapWithExternal(t *testing.T) {
	slot := domain.Window{
		Start: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
	}
	advCtx := Context{
		External: []domain.BusyInterval{{Start: slot.Start, End: slot.End}},
		TimeZone: "UTC",
	}
	assert.False(t, validSlot(slot, advCtx, tz.DefaultWorkingWindow(), false))
}

func TestValidSlot_AcceptsFreeSlotWithinWorkingWindow(t *testing.T) {
	slot := domain.Window{
		Start: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC),
	}
	advCtx := Context{TimeZone: "UTC"}
	assert.True(t, validSlot(slot, advCtx, tz.DefaultWorkingWindow(), true))
}
