package credit

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseStrategySynonyms(t *testing.T) {
	cases := map[string]TimeWindowStrategy{
		"day":     StrategyDay,
		"daily":   StrategyDay,
		"week":    StrategyWeek,
		"weekly":  StrategyWeek,
		"month":   StrategyMonth,
		"monthly": StrategyMonth,
		"all":     StrategyAll,
	}
	for input, want := range cases {
		got, err := ParseStrategy(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: got=%s want=%s", input, got, want)
		}
	}
}

func TestStrategiesCanonical(t *testing.T) {
	strategies := Strategies()
	want := []TimeWindowStrategy{StrategyDay, StrategyWeek, StrategyMonth, StrategyAll}
	if len(strategies) != len(want) {
		t.Fatalf("strategies: got=%d want=%d", len(strategies), len(want))
	}
	for i, strategy := range strategies {
		if strategy != want[i] {
			t.Fatalf("strategies[%d]: got=%s want=%s", i, strategy, want[i])
		}
		if _, err := ParseStrategy(string(strategy)); err != nil {
			t.Fatalf("canonical value %q must parse: %v", strategy, err)
		}
	}
}

func TestParseStrategyInvalid(t *testing.T) {
	for _, input := range []string{"", "yearly", "Day", "MONTH"} {
		if _, err := ParseStrategy(input); !errors.Is(err, ErrInvalidStrategy) {
			t.Fatalf("parse %q: expected ErrInvalidStrategy, got %v", input, err)
		}
	}
}

func TestWindowKeyDay(t *testing.T) {
	morning := time.Date(2023, 10, 15, 0, 30, 0, 0, time.UTC)
	evening := time.Date(2023, 10, 15, 23, 30, 0, 0, time.UTC)
	nextDay := time.Date(2023, 10, 16, 0, 30, 0, 0, time.UTC)

	if WindowKey(morning, StrategyDay) != WindowKey(evening, StrategyDay) {
		t.Fatalf("same-day timestamps should collide: %s vs %s",
			WindowKey(morning, StrategyDay), WindowKey(evening, StrategyDay))
	}
	if WindowKey(evening, StrategyDay) == WindowKey(nextDay, StrategyDay) {
		t.Fatalf("adjacent days should differ")
	}
	if got := WindowKey(morning, StrategyDay); got != "2023-10-15" {
		t.Fatalf("day key: got=%s want=2023-10-15", got)
	}
}

func TestWindowKeyWeek(t *testing.T) {
	// Monday and Sunday of the same ISO week.
	monday := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2024, 1, 21, 10, 0, 0, 0, time.UTC)
	nextMonday := time.Date(2024, 1, 22, 10, 0, 0, 0, time.UTC)

	if WindowKey(monday, StrategyWeek) != WindowKey(sunday, StrategyWeek) {
		t.Fatalf("same ISO week should collide")
	}
	if WindowKey(sunday, StrategyWeek) == WindowKey(nextMonday, StrategyWeek) {
		t.Fatalf("adjacent weeks should differ")
	}
	if got := WindowKey(monday, StrategyWeek); got != "2024-W03" {
		t.Fatalf("week key: got=%s want=2024-W03", got)
	}
}

func TestWindowKeyMonth(t *testing.T) {
	first := time.Date(2023, 10, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2023, 10, 31, 23, 59, 59, 0, time.UTC)
	next := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)

	if WindowKey(first, StrategyMonth) != WindowKey(last, StrategyMonth) {
		t.Fatalf("same month should collide")
	}
	if WindowKey(last, StrategyMonth) == WindowKey(next, StrategyMonth) {
		t.Fatalf("adjacent months should differ")
	}
	if got := WindowKey(first, StrategyMonth); got != "2023-10" {
		t.Fatalf("month key: got=%s want=2023-10", got)
	}
}

func TestWindowKeyAll(t *testing.T) {
	a := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	b := time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)
	if WindowKey(a, StrategyAll) != "all" || WindowKey(b, StrategyAll) != "all" {
		t.Fatalf("all strategy should map everything to one key")
	}
}

func TestIsSmallUnspent(t *testing.T) {
	ceiling := decimal.NewFromInt(5)
	cases := []struct {
		name    string
		amount  string
		balance string
		want    bool
	}{
		{"fully unspent under ceiling", "3", "3", true},
		{"exactly at ceiling", "5", "5", true},
		{"above ceiling", "6", "6", false},
		{"partially spent", "3", "2", false},
		{"zero balance", "3", "0", false},
		{"negative balance", "3", "-1", false},
	}
	for _, tc := range cases {
		tx := Transaction{
			Amount:  decimal.RequireFromString(tc.amount),
			Balance: decimal.RequireFromString(tc.balance),
		}
		if got := tx.IsSmallUnspent(ceiling); got != tc.want {
			t.Fatalf("%s: got=%t want=%t", tc.name, got, tc.want)
		}
	}
}
