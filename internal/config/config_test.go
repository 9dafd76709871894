package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("CALENDAR_BASE_URL", "https://calendar.example.test")
	t.Setenv("ENV", "dev")
	for _, k := range []string{"ADVISOR_ENABLED", "ADVISOR_BASE_URL"} {
		_ = os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", c.Env)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.False(t, c.Advisor.Enabled)
}

func TestLoad_AdvisorRequiresBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADVISOR_ENABLED", "true")
	_, err := Load()
	assert.Error(t, err)
}

func TestDefaultSchedulerConfig_MatchesConstants(t *testing.T) {
	sc := DefaultSchedulerConfig()
	assert.Equal(t, 10, sc.BufferMinutes)
	assert.Equal(t, 5, sc.CompressedBufferMinutes)
	assert.Equal(t, 7, sc.SearchDays)
	assert.Equal(t, 15, sc.SlotIncrementMinutes)
	assert.Equal(t, 8, sc.WorkingStartHour)
	assert.Equal(t, 22, sc.DayEndHour)
	assert.Equal(t, 0.7, sc.RoutineSleepScale)
	assert.Equal(t, 70.0, sc.RoutineSleepCap)
	assert.Equal(t, 4, sc.PreemptionMaxCombinationSize)
	assert.Equal(t, 64, sc.PreemptionMaxCombinations)
}
