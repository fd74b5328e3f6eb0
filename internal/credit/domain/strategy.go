package credit

import (
	"fmt"
	"time"
)

// TimeWindowStrategy decides which expiring entries may be merged together.
type TimeWindowStrategy string

const (
	StrategyDay   TimeWindowStrategy = "day"
	StrategyWeek  TimeWindowStrategy = "week"
	StrategyMonth TimeWindowStrategy = "month"
	StrategyAll   TimeWindowStrategy = "all"
)

// WindowKeyNoExpiry groups entries that never expire.
const WindowKeyNoExpiry = "no_expiry"

var strategySynonyms = map[string]TimeWindowStrategy{
	"day":     StrategyDay,
	"daily":   StrategyDay,
	"week":    StrategyWeek,
	"weekly":  StrategyWeek,
	"month":   StrategyMonth,
	"monthly": StrategyMonth,
	"all":     StrategyAll,
}

// ParseStrategy resolves a strategy string, accepting the daily/weekly/monthly
// synonyms. Unknown input returns ErrInvalidStrategy, never a default.
func ParseStrategy(value string) (TimeWindowStrategy, error) {
	if strategy, ok := strategySynonyms[value]; ok {
		return strategy, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, value)
}

// Strategies lists the canonical strategy values.
func Strategies() []TimeWindowStrategy {
	return []TimeWindowStrategy{StrategyDay, StrategyWeek, StrategyMonth, StrategyAll}
}

// WindowKey maps a timestamp to the grouping key for the strategy.
// Timestamps in the same calendar day/week/month collide to the same key.
func WindowKey(t time.Time, strategy TimeWindowStrategy) string {
	switch strategy {
	case StrategyDay:
		return t.Format("2006-01-02")
	case StrategyWeek:
		_, week := t.ISOWeek()
		return fmt.Sprintf("%s-W%02d", t.Format("2006"), week)
	case StrategyMonth:
		return t.Format("2006-01")
	default:
		return "all"
	}
}
