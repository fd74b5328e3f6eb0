package application

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
	"credit-merge/internal/mergeconfig"
	"credit-merge/internal/observability/metrics"
)

// AutoMergeService merges an account's small entries ahead of a large spend,
// so the spend produces fewer consumption-log rows.
type AutoMergeService struct {
	cfg    mergeconfig.AutoMerge
	store  credit.TransactionStore
	merger *MergeService
	logger zerolog.Logger
}

// NewAutoMergeService constructs the trigger.
func NewAutoMergeService(cfg mergeconfig.AutoMerge, store credit.TransactionStore, merger *MergeService, logger zerolog.Logger) *AutoMergeService {
	return &AutoMergeService{cfg: cfg, store: store, merger: merger, logger: logger}
}

// CheckAndMergeIfNeeded runs a merge when the pending spend is large enough
// and the consumption preview shows it would touch more records than the
// configured threshold. A skipped trigger is not an error.
func (s *AutoMergeService) CheckAndMergeIfNeeded(ctx context.Context, account *credit.Account, costAmount decimal.Decimal) error {
	if account == nil {
		return credit.ErrNilAccount
	}
	if !s.cfg.Enabled || costAmount.LessThan(s.cfg.MinCostDecimal()) {
		metrics.IncAutoMergeTrigger("skipped")
		return nil
	}

	recordCount, err := s.store.ConsumptionPreview(ctx, account.ID, costAmount)
	if err != nil {
		return err
	}
	if recordCount <= s.cfg.RecordThreshold {
		metrics.IncAutoMergeTrigger("below_threshold")
		return nil
	}

	strategy, err := s.cfg.ParsedStrategy()
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("account_id", account.ID).
		Str("cost_amount", costAmount.String()).
		Int("record_count", recordCount).
		Int("threshold", s.cfg.RecordThreshold).
		Str("strategy", string(strategy)).
		Msg("large spend triggered small amount merge")

	mergedCount, err := s.merger.MergeSmallAmounts(ctx, account, s.cfg.MergeFloorDecimal(), DefaultBatchSize, strategy, false)
	if err != nil {
		metrics.IncAutoMergeTrigger("failed")
		return err
	}
	metrics.IncAutoMergeTrigger("merged")

	s.logger.Info().
		Str("account_id", account.ID).
		Int("merge_count", mergedCount).
		Str("strategy", string(strategy)).
		Msg("triggered small amount merge finished")
	return nil
}
