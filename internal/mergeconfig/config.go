package mergeconfig

import (
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	credit "credit-merge/internal/credit/domain"
)

// AutoMerge configures the consumption-triggered merge. Replaces the
// implicit environment reads of earlier revisions with an explicit struct.
type AutoMerge struct {
	// Enabled toggles the trigger.
	Enabled bool `yaml:"enabled"`
	// RecordThreshold is the consumption-preview record count above which
	// a merge runs before the spend proceeds.
	RecordThreshold int `yaml:"record_threshold"`
	// MinCost is the spend size below which the trigger never fires.
	MinCost float64 `yaml:"min_cost"`
	// Strategy is the time-window strategy for triggered merges.
	Strategy string `yaml:"strategy"`
	// MergeFloor is the balance ceiling for entries considered small.
	MergeFloor float64 `yaml:"merge_floor"`
}

// Schedule configures the daily batch run.
type Schedule struct {
	// DailyAt is the HH:MM UTC wall time of the batch run.
	DailyAt string `yaml:"daily_at"`
	// Enabled toggles the scheduler loop.
	Enabled bool `yaml:"enabled"`
}

// Config is the merge engine configuration.
type Config struct {
	AutoMerge AutoMerge `yaml:"auto_merge"`
	Schedule  Schedule  `yaml:"schedule"`
}

// Load builds configuration from defaults, overlays the yaml file named by
// MERGE_CONFIG when set, then applies env overrides.
func Load() (Config, error) {
	cfg := Config{
		AutoMerge: AutoMerge{
			Enabled:         true,
			RecordThreshold: 100,
			MinCost:         100.0,
			Strategy:        string(credit.StrategyMonth),
			MergeFloor:      5.0,
		},
		Schedule: Schedule{
			DailyAt: "02:00",
			Enabled: true,
		},
	}

	if path := os.Getenv("MERGE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.AutoMerge.Enabled = getenvBoolDefault("CREDIT_AUTO_MERGE_ENABLED", cfg.AutoMerge.Enabled)
	cfg.AutoMerge.RecordThreshold = getenvIntDefault("CREDIT_AUTO_MERGE_THRESHOLD", cfg.AutoMerge.RecordThreshold)
	cfg.AutoMerge.MinCost = getenvFloatDefault("CREDIT_AUTO_MERGE_MIN_AMOUNT", cfg.AutoMerge.MinCost)
	cfg.AutoMerge.MergeFloor = getenvFloatDefault("CREDIT_MIN_AMOUNT_TO_MERGE", cfg.AutoMerge.MergeFloor)
	if value := os.Getenv("CREDIT_TIME_WINDOW_STRATEGY"); value != "" {
		cfg.AutoMerge.Strategy = value
	}
	cfg.Schedule.DailyAt = getenvDefault("MERGE_DAILY_AT", cfg.Schedule.DailyAt)

	if _, err := credit.ParseStrategy(cfg.AutoMerge.Strategy); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ParsedStrategy resolves the configured strategy.
func (a AutoMerge) ParsedStrategy() (credit.TimeWindowStrategy, error) {
	return credit.ParseStrategy(a.Strategy)
}

// MinCostDecimal returns the trigger floor as a decimal.
func (a AutoMerge) MinCostDecimal() decimal.Decimal {
	return decimal.NewFromFloat(a.MinCost)
}

// MergeFloorDecimal returns the small-entry ceiling as a decimal.
func (a AutoMerge) MergeFloorDecimal() decimal.Decimal {
	return decimal.NewFromFloat(a.MergeFloor)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
