package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diaguru-scheduler/internal/domain"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestLedger_RunCreatedLazily(t *testing.T) {
	l := New("user1", fixedNow(time.Now()))
	assert.Nil(t, l.Run())

	c := domain.Capture{ID: "c1", Status: domain.StatusScheduled}
	l.Record(domain.ActionScheduled, c, domain.CaptureSnapshot{})
	require.NotNil(t, l.Run())
	assert.Equal(t, "user1", l.Run().UserID)
}

func TestLedger_RecordAppendsActionsInOrder(t *testing.T) {
	l := New("user1", fixedNow(time.Now()))
	l.Record(domain.ActionUnscheduled, domain.Capture{ID: "c1"}, domain.CaptureSnapshot{})
	l.Record(domain.ActionScheduled, domain.Capture{ID: "c1"}, domain.CaptureSnapshot{})

	actions := l.Run().Actions
	require.Len(t, actions, 2)
	assert.Equal(t, domain.ActionUnscheduled, actions[0].Kind)
	assert.Equal(t, domain.ActionScheduled, actions[1].Kind)
}

func TestLedger_FinalizeComputesSummary(t *testing.T) {
	l := New("user1", fixedNow(time.Now()))
	l.Record(domain.ActionScheduled, domain.Capture{ID: "c1"}, domain.CaptureSnapshot{})
	l.Record(domain.ActionRescheduled, domain.Capture{ID: "c2"}, domain.CaptureSnapshot{})
	l.Record(domain.ActionUnscheduled, domain.Capture{ID: "c3"}, domain.CaptureSnapshot{})

	run := l.Finalize()
	require.NotNil(t, run)
	assert.Equal(t, "scheduled:1 moved:1 unscheduled:1", run.Summary)
}

func TestLedger_FinalizeNilWhenNoMutation(t *testing.T) {
	l := New("user1", fixedNow(time.Now()))
	assert.Nil(t, l.Finalize())
}

func TestSnapshot_CapturesPlacementFields(t *testing.T) {
	start := time.Now()
	c := domain.Capture{Status: domain.StatusScheduled, PlannedStart: &start}
	s := Snapshot(c)
	assert.Equal(t, domain.StatusScheduled, s.Status)
	require.NotNil(t, s.PlannedStart)
	assert.True(t, s.PlannedStart.Equal(start))
}
