package application

import (
	"context"

	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
	merge "credit-merge/internal/merge/domain"
)

// StatsService computes small-amount statistics for an account. The derived
// metrics (average, potential reduction, efficiency) live on the stats object
// itself so every consumer recomputes them identically.
type StatsService struct {
	store credit.TransactionStore
}

// NewStatsService constructs a stats service over the read store.
func NewStatsService(store credit.TransactionStore) *StatsService {
	return &StatsService{store: store}
}

// SmallAmountStats returns count and total of small balances via a single
// aggregate query. No window groups are populated.
func (s *StatsService) SmallAmountStats(ctx context.Context, account *credit.Account, threshold decimal.Decimal) (*merge.SmallAmountStats, error) {
	return s.BasicStatsWith(ctx, s.store, account, threshold)
}

// DetailedSmallAmountStats adds the no-expiry group and one group per time
// window on top of the basic stats.
func (s *StatsService) DetailedSmallAmountStats(ctx context.Context, account *credit.Account, threshold decimal.Decimal, strategy credit.TimeWindowStrategy) (*merge.SmallAmountStats, error) {
	return s.DetailedStatsWith(ctx, s.store, account, threshold, strategy)
}

// BasicStatsWith runs the basic aggregate through the given store, which may
// be bound to an open storage transaction.
func (s *StatsService) BasicStatsWith(ctx context.Context, store credit.TransactionStore, account *credit.Account, threshold decimal.Decimal) (*merge.SmallAmountStats, error) {
	if account == nil {
		return nil, credit.ErrNilAccount
	}
	count, total, err := store.AggregateSmall(ctx, account.ID, threshold)
	if err != nil {
		return nil, err
	}
	return merge.NewSmallAmountStats(account.ID, count, total, threshold), nil
}

// DetailedStatsWith computes detailed stats through the given store.
func (s *StatsService) DetailedStatsWith(ctx context.Context, store credit.TransactionStore, account *credit.Account, threshold decimal.Decimal, strategy credit.TimeWindowStrategy) (*merge.SmallAmountStats, error) {
	stats, err := s.BasicStatsWith(ctx, store, account, threshold)
	if err != nil {
		return nil, err
	}
	stats.Strategy = strategy
	if stats.Count <= 0 {
		return stats, nil
	}

	noExpiryCount, noExpiryTotal, err := store.AggregateSmallNoExpiry(ctx, account.ID, threshold)
	if err != nil {
		return nil, err
	}
	if noExpiryCount > 0 {
		stats.AddGroupStat(credit.WindowKeyNoExpiry, noExpiryCount, noExpiryTotal, nil)
	}

	expiring, err := store.ListSmallWithExpiry(ctx, account.ID, threshold)
	if err != nil {
		return nil, err
	}
	for key, group := range GroupByTimeWindow(expiring, strategy) {
		if group.Count == 0 {
			continue
		}
		earliest := group.EarliestExpiry
		stats.AddGroupStat(key, group.Count, group.TotalBalance, &earliest)
	}
	return stats, nil
}
