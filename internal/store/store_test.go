package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/platform/sqlite"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.NewInMemoryDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsureSchema(ctx, db))
	return NewSQLiteStore(db)
}

func sampleCapture(id string) domain.Capture {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	tod := domain.TimeOfDayMorning
	return domain.Capture{
		ID:                  id,
		OwnerID:             "user1",
		Content:             "write report",
		EstimatedMinutes:    60,
		Importance:          3,
		ConstraintKind:      domain.ConstraintFlexible,
		StartFlexibility:    domain.StartFlexibilitySoft,
		DurationFlexibility: domain.DurationFixed,
		PreferredTimeOfDay:  &tod,
		Status:              domain.StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
		SchedulingNotes:     domain.SchedulingNotes{Explanation: "first pass"},
	}
}

func TestSQLiteStore_CreateAndGetCapture(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := sampleCapture("c1")

	require.NoError(t, s.CreateCapture(ctx, c))

	got, err := s.GetCapture(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "write report", got.Content)
	assert.Equal(t, domain.StatusPending, got.Status)
	require.NotNil(t, got.PreferredTimeOfDay)
	assert.Equal(t, domain.TimeOfDayMorning, *got.PreferredTimeOfDay)
	assert.Equal(t, "first pass", got.SchedulingNotes.Explanation)
}

func TestSQLiteStore_GetCapture_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCapture(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpdateCapture(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := sampleCapture("c1")
	require.NoError(t, s.CreateCapture(ctx, c))

	c.Status = domain.StatusScheduled
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	c.PlannedStart, c.PlannedEnd = &start, &end
	require.NoError(t, s.UpdateCapture(ctx, c))

	got, err := s.GetCapture(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, got.Status)
	require.NotNil(t, got.PlannedStart)
	assert.True(t, got.PlannedStart.Equal(start))
}

func TestSQLiteStore_UpdateCapture_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateCapture(context.Background(), sampleCapture("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListPendingCaptures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCapture(ctx, sampleCapture("c1")))
	c2 := sampleCapture("c2")
	c2.Status = domain.StatusScheduled
	require.NoError(t, s.CreateCapture(ctx, c2))

	pending, err := s.ListPendingCaptures(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c1", pending[0].ID)
}

func TestSQLiteStore_ListOwnedCaptures_RangeOverlap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := sampleCapture("c1")
	c.Status = domain.StatusScheduled
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	c.PlannedStart, c.PlannedEnd = &start, &end
	require.NoError(t, s.CreateCapture(ctx, c))

	inRange, err := s.ListOwnedCaptures(ctx, "user1", start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, inRange, 1)

	outOfRange, err := s.ListOwnedCaptures(ctx, "user1", end.Add(time.Hour), end.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, outOfRange, 0)
}

func TestSQLiteStore_ReplaceAndGetChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateCapture(ctx, sampleCapture("c1")))

	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	chunks := []domain.Chunk{
		{Start: start, End: start.Add(30 * time.Minute)},
		{Start: start.Add(time.Hour), End: start.Add(90 * time.Minute), Late: true},
	}
	require.NoError(t, s.ReplaceChunks(ctx, "c1", chunks))

	got, err := s.GetChunks(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[1].Late)

	require.NoError(t, s.ReplaceChunks(ctx, "c1", chunks[:1]))
	got, err = s.GetChunks(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLiteStore_SaveAndGetPlanRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	run := &domain.PlanRun{
		ID:        "run1",
		UserID:    "user1",
		Summary:   "scheduled:1 moved:0 unscheduled:0",
		CreatedAt: now,
		Actions: []domain.PlanAction{
			{
				ID:             "a1",
				PlanID:         "run1",
				ActionID:       "a1",
				CaptureID:      "c1",
				CaptureContent: "write report",
				Kind:           domain.ActionScheduled,
				After:          domain.CaptureSnapshot{Status: domain.StatusScheduled},
				CreatedAt:      now,
			},
		},
	}
	require.NoError(t, s.SavePlanRun(ctx, run))

	got, err := s.GetPlanRun(ctx, "run1")
	require.NoError(t, err)
	assert.Equal(t, run.Summary, got.Summary)
	require.Len(t, got.Actions, 1)
	assert.Equal(t, domain.ActionScheduled, got.Actions[0].Kind)
	assert.Equal(t, domain.StatusScheduled, got.Actions[0].After.Status)
}

func TestSQLiteStore_GetPlanRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetPlanRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_WithinTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.CreateCapture(ctx, sampleCapture("c1")); err != nil {
			return err
		}
		return assertErr
	})
	assert.ErrorIs(t, err, assertErr)

	_, getErr := s.GetCapture(ctx, "c1")
	assert.ErrorIs(t, getErr, ErrNotFound)
}

var assertErr = errRollback("boom")

type errRollback string

func (e errRollback) Error() string { return string(e) }
