package application

import (
	"context"

	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
)

// BucketStat is a count/amount pair for one slice of the population.
type BucketStat struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// WindowBreakdown describes how one strategy would window the expiring
// entries and how much of that is mergeable.
type WindowBreakdown struct {
	WindowCount      int             `json:"window_count"`
	MergeableWindows int             `json:"mergeable_windows"`
	MergeableRecords int             `json:"mergeable_records"`
	MergeableAmount  decimal.Decimal `json:"mergeable_amount"`
}

// StrategyRecommendation names the strategy that would merge the most rows.
type StrategyRecommendation struct {
	Strategy string          `json:"strategy"`
	Records  int             `json:"records"`
	Amount   decimal.Decimal `json:"amount"`
}

// Distribution is the full merge-potential picture for one account.
type Distribution struct {
	TotalCount  int                        `json:"total_count"`
	TotalAmount decimal.Decimal            `json:"total_amount"`
	NoExpiry    BucketStat                 `json:"no_expiry"`
	WithExpiry  BucketStat                 `json:"with_expiry"`
	ByWindow    map[string]WindowBreakdown `json:"by_window"`
	Optimal     StrategyRecommendation     `json:"optimal_strategy"`
}

// SmallAmountDistribution analyzes where the small unspent entries of an
// account sit and which window strategy would merge the most of them.
func (s *StatsService) SmallAmountDistribution(ctx context.Context, account *credit.Account, minAmount decimal.Decimal) (*Distribution, error) {
	if account == nil {
		return nil, credit.ErrNilAccount
	}

	noExpiry, err := s.store.FindMergeableNoExpiry(ctx, account.ID, minAmount)
	if err != nil {
		return nil, err
	}
	expiring, err := s.store.FindMergeableWithExpiry(ctx, account.ID, minAmount)
	if err != nil {
		return nil, err
	}

	dist := &Distribution{
		NoExpiry:   BucketStat{Count: len(noExpiry), Amount: sumBalances(noExpiry)},
		WithExpiry: BucketStat{Count: len(expiring), Amount: sumBalances(expiring)},
		ByWindow:   make(map[string]WindowBreakdown, 3),
	}
	dist.TotalCount = dist.NoExpiry.Count + dist.WithExpiry.Count
	dist.TotalAmount = dist.NoExpiry.Amount.Add(dist.WithExpiry.Amount)

	for _, strategy := range []credit.TimeWindowStrategy{credit.StrategyDay, credit.StrategyWeek, credit.StrategyMonth} {
		dist.ByWindow[string(strategy)] = breakdownFor(expiring, strategy)
	}
	dist.Optimal = pickOptimalStrategy(dist)
	return dist, nil
}

func breakdownFor(records []*credit.Transaction, strategy credit.TimeWindowStrategy) WindowBreakdown {
	grouped := GroupByTimeWindow(records, strategy)
	breakdown := WindowBreakdown{
		WindowCount:     len(grouped),
		MergeableAmount: decimal.Zero,
	}
	for _, group := range grouped {
		if !group.Mergeable() {
			continue
		}
		breakdown.MergeableWindows++
		breakdown.MergeableRecords += group.Count
		breakdown.MergeableAmount = breakdown.MergeableAmount.Add(group.TotalBalance)
	}
	return breakdown
}

// pickOptimalStrategy favors whichever bucket would merge the most rows.
func pickOptimalStrategy(dist *Distribution) StrategyRecommendation {
	best := StrategyRecommendation{Strategy: credit.WindowKeyNoExpiry, Amount: decimal.Zero}
	if dist.NoExpiry.Count > 1 {
		best.Records = dist.NoExpiry.Count
		best.Amount = dist.NoExpiry.Amount
	}
	for _, strategy := range []credit.TimeWindowStrategy{credit.StrategyDay, credit.StrategyWeek, credit.StrategyMonth} {
		breakdown := dist.ByWindow[string(strategy)]
		if breakdown.MergeableRecords > best.Records {
			best = StrategyRecommendation{
				Strategy: string(strategy),
				Records:  breakdown.MergeableRecords,
				Amount:   breakdown.MergeableAmount,
			}
		}
	}
	return best
}

func sumBalances(records []*credit.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, record := range records {
		total = total.Add(record.Balance)
	}
	return total
}
