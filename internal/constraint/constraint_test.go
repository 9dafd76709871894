package constraint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diaguru-scheduler/internal/domain"
)

func TestComputeSchedulingPlan_DeadlineTimeAlias(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	deadline := time.Date(2024, 6, 2, 18, 0, 0, 0, time.UTC)
	c := &domain.Capture{ConstraintKind: "deadline", ConstraintTime: &deadline}

	res, err := ComputeSchedulingPlan(c, now, "UTC", 30)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanDeadline, res.Plan.Mode)
	require.NotNil(t, res.Plan.Deadline)
	assert.True(t, res.Plan.Deadline.Equal(deadline))
	assert.True(t, res.Deadline.Equal(deadline))
}

func TestComputeSchedulingPlan_DeadlineDateEndOfLocalDay(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	date := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	c := &domain.Capture{ConstraintKind: domain.ConstraintDeadlineDate, ConstraintDate: &date}

	res, err := ComputeSchedulingPlan(c, now, "UTC", 30)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanDeadline, res.Plan.Mode)
	assert.Equal(t, 22, res.Plan.Deadline.Hour())
	assert.Equal(t, 3, res.Plan.Deadline.Day())
}

func TestComputeSchedulingPlan_StartTimeClampedToNow(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	c := &domain.Capture{ConstraintKind: domain.ConstraintStartTime, ConstraintTime: &past}

	res, err := ComputeSchedulingPlan(c, now, "UTC", 45)
	require.NoError(t, err)
	require.Equal(t, domain.PlanStart, res.Plan.Mode)
	assert.True(t, res.Plan.PreferredSlot.Start.Equal(now))
	assert.True(t, res.Plan.PreferredSlot.End.Equal(now.Add(45*time.Minute)))
}

func TestComputeSchedulingPlan_StartTimeFallsBackToOriginalTarget(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	original := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	c := &domain.Capture{ConstraintKind: domain.ConstraintStartTime, OriginalTargetTime: &original}

	res, err := ComputeSchedulingPlan(c, now, "UTC", 30)
	require.NoError(t, err)
	require.Equal(t, domain.PlanStart, res.Plan.Mode)
	assert.True(t, res.Plan.PreferredSlot.Start.Equal(original))
}

func TestComputeSchedulingPlan_ValidWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	ws := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	we := time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)
	c := &domain.Capture{ConstraintKind: domain.ConstraintWindow, WindowStart: &ws, WindowEnd: &we}

	res, err := ComputeSchedulingPlan(c, now, "UTC", 30)
	require.NoError(t, err)
	require.Equal(t, domain.PlanWindow, res.Plan.Mode)
	assert.Nil(t, res.Plan.PreferredSlot)
	assert.True(t, res.Plan.WindowBounds.Start.Equal(ws))
	assert.True(t, res.Deadline.Equal(we))
}

func TestComputeSchedulingPlan_InvalidWindowFallsBackFlexible(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	ws := time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)
	we := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	c := &domain.Capture{ConstraintKind: domain.ConstraintWindow, WindowStart: &ws, WindowEnd: &we}

	res, err := ComputeSchedulingPlan(c, now, "UTC", 30)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFlexible, res.Plan.Mode)
}

func TestComputeSchedulingPlan_DeadlineAtTakesPrecedenceOverWindowEnd(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	we := time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)
	ws := time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)
	deadlineAt := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)
	c := &domain.Capture{ConstraintKind: domain.ConstraintWindow, WindowStart: &ws, WindowEnd: &we, DeadlineAt: &deadlineAt}

	res, err := ComputeSchedulingPlan(c, now, "UTC", 30)
	require.NoError(t, err)
	assert.True(t, res.Deadline.Equal(deadlineAt))
}

func TestComputeSchedulingPlan_DefaultFlexible(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	c := &domain.Capture{ConstraintKind: domain.ConstraintFlexible}

	res, err := ComputeSchedulingPlan(c, now, "UTC", 30)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFlexible, res.Plan.Mode)
	assert.Nil(t, res.Deadline)
}
