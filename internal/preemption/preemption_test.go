package preemption

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diaguru-scheduler/internal/domain"
)

func TestSelectMinimalPreemptionSet_FindsSingleRemoval(t *testing.T) {
	slot := domain.Window{
		Start: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	events := []domain.CalendarEvent{
		{ID: "owned1", Start: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), End: time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC), Properties: map[string]string{"diaGuru": "true", "capture_id": "c1"}},
	}
	combo, ok := SelectMinimalPreemptionSet(SelectionInput{
		Slot:         slot,
		Events:       events,
		CandidateIDs: []string{"owned1"},
		Now:          time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	})
	require.True(t, ok)
	assert.Equal(t, []string{"owned1"}, combo)
}

func TestSelectMinimalPreemptionSet_NoFeasibleCombination(t *testing.T) {
	slot := domain.Window{
		Start: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	events := []domain.CalendarEvent{
		{ID: "ext1", Start: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), End: time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)},
	}
	_, ok := SelectMinimalPreemptionSet(SelectionInput{
		Slot:         slot,
		Events:       events,
		CandidateIDs: []string{"owned1"},
		Now:          time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	})
	assert.False(t, ok)
}

func TestSelectMinimalPreemptionSet_PrefersSmallestCombination(t *testing.T) {
	slot := domain.Window{
		Start: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC),
	}
	events := []domain.CalendarEvent{
		{ID: "owned1", Start: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), End: time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), Properties: map[string]string{"diaGuru": "true"}},
		{ID: "owned2", Start: time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC), End: time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC), Properties: map[string]string{"diaGuru": "true"}},
	}
	combo, ok := SelectMinimalPreemptionSet(SelectionInput{
		Slot:         slot,
		Events:       events,
		CandidateIDs: []string{"owned1", "owned2"},
		Now:          time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	})
	require.True(t, ok)
	assert.Len(t, combo, 2)
}

func flat(score float64) func(domain.Capture, time.Time) float64 {
	return func(domain.Capture, time.Time) float64 { return score }
}

func TestEvaluatePreemptionNetGain_AllowsNetGainAtFloor(t *testing.T) {
	res := EvaluatePreemptionNetGain(NetGainInput{
		Target:         domain.Capture{EstimatedMinutes: 30},
		Displacements:  []Displacement{{Capture: domain.Capture{EstimatedMinutes: 30}, MinutesClaimed: 30}},
		MinutesClaimed: 30,
		ReferenceNow:   time.Now(),
		PerMinute:      flat(10),
	}, Thresholds{NetGainFloor: 0, PerMinuteGainFloor: 0, MaxDisplacedMinutes: 60, MaxDisplacedTasks: 2})
	assert.Equal(t, 300.0, res.Benefit)
	assert.Equal(t, 300.0, res.Cost)
	assert.Equal(t, 0.0, res.Net)
	assert.True(t, res.Allowed)
}

func TestEvaluatePreemptionNetGain_OverlapSoftCostAddsToCost(t *testing.T) {
	in := NetGainInput{
		Target:         domain.Capture{EstimatedMinutes: 30},
		Displacements:  []Displacement{{Capture: domain.Capture{EstimatedMinutes: 30}, MinutesClaimed: 30, Overlapped: true}},
		MinutesClaimed: 30,
		ReferenceNow:   time.Now(),
		PerMinute:      flat(10),
	}
	without := EvaluatePreemptionNetGain(in, Thresholds{NetGainFloor: -1000, PerMinuteGainFloor: -1000, MaxDisplacedMinutes: 60, MaxDisplacedTasks: 2})

	in.OverlapSoftCost = func(d Displacement) float64 {
		if !d.Overlapped {
			return 0
		}
		return 0.05 * d.MinutesClaimed
	}
	with := EvaluatePreemptionNetGain(in, Thresholds{NetGainFloor: -1000, PerMinuteGainFloor: -1000, MaxDisplacedMinutes: 60, MaxDisplacedTasks: 2})

	assert.Equal(t, without.Cost+1.5, with.Cost)
	assert.Equal(t, without.Net-1.5, with.Net)
}

func TestEvaluatePreemptionNetGain_RejectsBelowFloor(t *testing.T) {
	res := EvaluatePreemptionNetGain(NetGainInput{
		Target:         domain.Capture{EstimatedMinutes: 30},
		Displacements:  []Displacement{{Capture: domain.Capture{EstimatedMinutes: 60}, MinutesClaimed: 30}},
		MinutesClaimed: 30,
		ReferenceNow:   time.Now(),
		PerMinute:      func(c domain.Capture, _ time.Time) float64 {
			if c.EstimatedMinutes == 30 {
				return 1
			}
			return 100
		},
	}, Thresholds{NetGainFloor: 0, PerMinuteGainFloor: 0, MaxDisplacedMinutes: 60, MaxDisplacedTasks: 2})
	assert.False(t, res.Allowed)
}

func TestEvaluatePreemptionNetGain_RejectsTooManyDisplacedTasks(t *testing.T) {
	res := EvaluatePreemptionNetGain(NetGainInput{
		Target:         domain.Capture{EstimatedMinutes: 30},
		Displacements:  []Displacement{{MinutesClaimed: 10}, {MinutesClaimed: 10}, {MinutesClaimed: 10}},
		MinutesClaimed: 30,
		ReferenceNow:   time.Now(),
		PerMinute:      flat(100),
	}, Thresholds{NetGainFloor: 0, PerMinuteGainFloor: 0, MaxDisplacedMinutes: 100, MaxDisplacedTasks: 2})
	assert.False(t, res.Allowed)
}

func TestIsMovable_FrozenNeverMovable(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	freeze := now.Add(time.Hour)
	c := domain.Capture{FreezeUntil: &freeze}
	assert.False(t, IsMovable(c, now, 30*time.Minute, false))
}

func TestIsMovable_StabilityWindowBlocksUnlessDeadlinePlan(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	start := now.Add(10 * time.Minute)
	c := domain.Capture{PlannedStart: &start}
	assert.False(t, IsMovable(c, now, 30*time.Minute, false))
	assert.True(t, IsMovable(c, now, 30*time.Minute, true))
}
