package merge

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
)

func TestPotentialRecordReductionUngrouped(t *testing.T) {
	stats := NewSmallAmountStats("acct-1", 4, decimal.NewFromInt(8), decimal.NewFromInt(5))
	if got := stats.PotentialRecordReduction(); got != 3 {
		t.Fatalf("ungrouped reduction: got=%d want=3", got)
	}
}

func TestPotentialRecordReductionGrouped(t *testing.T) {
	stats := NewSmallAmountStats("acct-1", 6, decimal.NewFromInt(12), decimal.NewFromInt(5))
	stats.AddGroupStat("2023-10", 3, decimal.NewFromInt(6), nil)
	stats.AddGroupStat("2023-11", 2, decimal.NewFromInt(4), nil)
	stats.AddGroupStat("2023-12", 1, decimal.NewFromInt(2), nil)

	// 3 records collapse to 1 and 2 collapse to 1; the singleton changes
	// nothing.
	if got := stats.PotentialRecordReduction(); got != 3 {
		t.Fatalf("grouped reduction: got=%d want=3", got)
	}
}

func TestPotentialRecordReductionNotMergeable(t *testing.T) {
	for _, count := range []int{0, 1} {
		stats := NewSmallAmountStats("acct-1", count, decimal.Zero, decimal.NewFromInt(5))
		if stats.HasMergeableRecords() {
			t.Fatalf("count=%d should not be mergeable", count)
		}
		if got := stats.PotentialRecordReduction(); got != 0 {
			t.Fatalf("count=%d reduction: got=%d want=0", count, got)
		}
	}
}

func TestMergeEfficiency(t *testing.T) {
	stats := NewSmallAmountStats("acct-1", 4, decimal.NewFromInt(8), decimal.NewFromInt(5))
	if got := stats.MergeEfficiency(); got != 75 {
		t.Fatalf("efficiency: got=%v want=75", got)
	}

	empty := NewSmallAmountStats("acct-1", 0, decimal.Zero, decimal.NewFromInt(5))
	if got := empty.MergeEfficiency(); got != 0 {
		t.Fatalf("empty efficiency: got=%v want=0", got)
	}
	single := NewSmallAmountStats("acct-1", 1, decimal.NewFromInt(2), decimal.NewFromInt(5))
	if got := single.MergeEfficiency(); got != 0 {
		t.Fatalf("single efficiency: got=%v want=0", got)
	}
}

func TestAverageAmount(t *testing.T) {
	stats := NewSmallAmountStats("acct-1", 3, decimal.RequireFromString("4.5"), decimal.NewFromInt(5))
	if got := stats.AverageAmount(); !got.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("average: got=%s want=1.5", got)
	}

	empty := NewSmallAmountStats("acct-1", 0, decimal.Zero, decimal.NewFromInt(5))
	if got := empty.AverageAmount(); !got.Equal(decimal.Zero) {
		t.Fatalf("empty average: got=%s want=0", got)
	}
}

func TestWindowGroupAdd(t *testing.T) {
	early := time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC)
	late := time.Date(2023, 10, 25, 0, 0, 0, 0, time.UTC)

	group := &WindowGroup{WindowKey: "2023-10"}
	group.Add(&credit.Transaction{Balance: decimal.RequireFromString("2.0")}, late)
	group.Add(&credit.Transaction{Balance: decimal.RequireFromString("1.5")}, early)

	if group.Count != 2 {
		t.Fatalf("count: got=%d want=2", group.Count)
	}
	if !group.TotalBalance.Equal(decimal.RequireFromString("3.5")) {
		t.Fatalf("total: got=%s want=3.5", group.TotalBalance)
	}
	if !group.EarliestExpiry.Equal(early) {
		t.Fatalf("earliest expiry: got=%s want=%s", group.EarliestExpiry, early)
	}
	if !group.LatestExpiry.Equal(late) {
		t.Fatalf("latest expiry: got=%s want=%s", group.LatestExpiry, late)
	}
	if !group.Mergeable() {
		t.Fatalf("two records should be mergeable")
	}

	single := &WindowGroup{WindowKey: "2023-11"}
	single.Add(&credit.Transaction{Balance: decimal.RequireFromString("1.0")}, early)
	if single.Mergeable() {
		t.Fatalf("single record should not be mergeable")
	}
}
