package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env      string `validate:"required,oneof=dev prod"`
	// Telegram is optional: when a bot token is configured, the
	// scheduler DMs users preferred_conflict decisions instead of only
	// returning them over HTTP. There is no inbound webhook/long-poll
	// receiver — notification is outbound-only.
	Telegram struct {
		Token string
	}
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Postgres struct {
		DSN string `validate:"required"`
	}
	Calendar struct {
		BaseURL string `validate:"required"`
		APIKey  string
	}
	Advisor struct {
		Enabled bool
		BaseURL string
		Model   string
		APIKey  string
	}
	Scheduler SchedulerConfig
}

// SchedulerConfig holds the scheduling-engine constants from spec.md
// §6: buffers, working window, overlap/preemption thresholds, routine
// priority scalers, and the preemption search bounds.
type SchedulerConfig struct {
	BufferMinutes           int
	CompressedBufferMinutes int
	SearchDays              int
	SlotIncrementMinutes    int
	WorkingStartHour        int
	DayEndHour              int
	StabilityWindowMinutes  int
	DefaultMinChunkMinutes  int
	TargetChunkMinutes      int

	RoutineSleepScale float64
	RoutineSleepCap   float64
	RoutineMealScale  float64
	RoutineMealCap    float64

	OverlapEnabled                bool
	OverlapMaxConcurrency         int
	OverlapPerTaskFraction        float64
	OverlapDailyBudgetMinutes     int
	OverlapSoftCostPerMinute      float64

	PreemptionNetGainFloor        float64
	PreemptionPerMinuteGainFloor  float64
	PreemptionMaxDisplacedMinutes float64
	PreemptionMaxDisplacedTasks   int
	PreemptionMaxCombinationSize  int
	PreemptionMaxCombinations     int
}

// DefaultSchedulerConfig returns the spec.md §6 default constants.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BufferMinutes:           10,
		CompressedBufferMinutes: 5,
		SearchDays:              7,
		SlotIncrementMinutes:    15,
		WorkingStartHour:        8,
		DayEndHour:              22,
		StabilityWindowMinutes:  30,
		DefaultMinChunkMinutes:  15,
		TargetChunkMinutes:      50,

		RoutineSleepScale: 0.7,
		RoutineSleepCap:   70,
		RoutineMealScale:  0.5,
		RoutineMealCap:    55,

		OverlapEnabled:            true,
		OverlapMaxConcurrency:     2,
		OverlapPerTaskFraction:    0.5,
		OverlapDailyBudgetMinutes: 120,
		OverlapSoftCostPerMinute:  0.05,

		PreemptionNetGainFloor:        5,
		PreemptionPerMinuteGainFloor:  0.1,
		PreemptionMaxDisplacedMinutes: 120,
		PreemptionMaxDisplacedTasks:   3,
		PreemptionMaxCombinationSize:  4,
		PreemptionMaxCombinations:     64,
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":80")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/scheduler.log")

	c.Postgres.DSN = os.Getenv("DATABASE_URL")
	c.Calendar.BaseURL = getenv("CALENDAR_BASE_URL", "")
	c.Calendar.APIKey = os.Getenv("CALENDAR_API_KEY")

	c.Advisor.Enabled = getenvBool("ADVISOR_ENABLED", false)
	c.Advisor.BaseURL = os.Getenv("ADVISOR_BASE_URL")
	c.Advisor.Model = getenv("ADVISOR_MODEL", "gpt-4o-mini")
	c.Advisor.APIKey = os.Getenv("ADVISOR_API_KEY")

	c.Scheduler = DefaultSchedulerConfig()

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if c.Advisor.Enabled && c.Advisor.BaseURL == "" {
		return Config{}, errors.New("ADVISOR_BASE_URL required when ADVISOR_ENABLED is set")
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
