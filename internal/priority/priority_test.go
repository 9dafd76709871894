package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"diaguru-scheduler/internal/domain"
)

func baseCapture() domain.Capture {
	return domain.Capture{
		ID:               "c1",
		Importance:       2,
		EstimatedMinutes: 30,
		CreatedAt:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestScore_NonNegative(t *testing.T) {
	c := baseCapture()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.GreaterOrEqual(t, Score(c, now, DefaultWeights()), 0.0)
}

func TestScore_DeadlineProximityIncreasesScore(t *testing.T) {
	w := DefaultWeights()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	far := baseCapture()
	farDeadline := now.Add(6 * 24 * time.Hour)
	far.DeadlineAt = &farDeadline

	near := baseCapture()
	nearDeadline := now.Add(time.Hour)
	near.DeadlineAt = &nearDeadline

	assert.Greater(t, Score(near, now, w), Score(far, now, w))
}

func TestScore_SleepRoutineDampened(t *testing.T) {
	w := DefaultWeights()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	plain := baseCapture()
	plain.Importance = 10

	sleep := plain
	sleep.TaskTypeHint = string(domain.RoutineSleep)

	assert.Less(t, Score(sleep, now, w), Score(plain, now, w))
	assert.LessOrEqual(t, Score(sleep, now, w), sleepCap)
}

func TestScore_MealRoutineCappedAt55(t *testing.T) {
	w := DefaultWeights()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	meal := baseCapture()
	meal.Importance = 1000
	meal.TaskTypeHint = string(domain.RoutineMeal)

	assert.LessOrEqual(t, Score(meal, now, w), mealCap)
}

func TestScore_ExternalityScoreBoostsScore(t *testing.T) {
	w := DefaultWeights()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	plain := baseCapture()
	externalized := plain
	externalized.ExternalityScore = 5

	assert.Greater(t, Score(externalized, now, w), Score(plain, now, w))
}

func TestScore_RescheduleCountBoostsScore(t *testing.T) {
	w := DefaultWeights()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	plain := baseCapture()
	bumped := plain
	bumped.RescheduleCount = 4

	assert.Greater(t, Score(bumped, now, w), Score(plain, now, w))
}

func TestPerMinute_DividesByDuration(t *testing.T) {
	w := DefaultWeights()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := baseCapture()
	c.EstimatedMinutes = 60

	expected := Score(c, now, w) / 60
	assert.InDelta(t, expected, PerMinute(c, now, w), 1e-9)
}

func TestPerMinute_FloorsDurationAtOne(t *testing.T) {
	w := DefaultWeights()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := baseCapture()
	c.EstimatedMinutes = 0

	expected := Score(c, now, w)
	assert.InDelta(t, expected, PerMinute(c, now, w), 1e-9)
}
