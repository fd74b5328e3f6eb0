package application

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
	merge "credit-merge/internal/merge/domain"
	"credit-merge/internal/observability/metrics"
)

// Default invocation parameters, matching the CLI defaults.
var (
	DefaultMinAmount = decimal.NewFromFloat(5.0)
)

const (
	DefaultBatchSize = 100
	DefaultStrategy  = credit.StrategyMonth
)

// MergeService is the entry point for merge runs. One call covers one
// account: before-stats, one storage transaction around the merges,
// after-stats, audit records. Concurrent runs against the same account are
// an accepted risk; callers wanting stronger guarantees take a per-account
// lock around the call.
type MergeService struct {
	uow      credit.UnitOfWork
	store    credit.TransactionStore
	stats    *StatsService
	recorder *OperationRecorder
	executor *MergeExecutor
	logger   zerolog.Logger
	clock    Clock
}

// NewMergeService constructs the orchestrator.
func NewMergeService(uow credit.UnitOfWork, store credit.TransactionStore, stats *StatsService, recorder *OperationRecorder, executor *MergeExecutor, logger zerolog.Logger, clock Clock) (*MergeService, error) {
	if uow == nil {
		return nil, errors.New("merge service: nil unit of work")
	}
	if store == nil {
		return nil, errors.New("merge service: nil transaction store")
	}
	if stats == nil || recorder == nil || executor == nil {
		return nil, errors.New("merge service: missing collaborators")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &MergeService{
		uow:      uow,
		store:    store,
		stats:    stats,
		recorder: recorder,
		executor: executor,
		logger:   logger,
		clock:    clock,
	}, nil
}

// MergeSmallAmounts consolidates the account's small unspent entries and
// returns the number of source rows consumed. Dry-run computes and records
// everything but mutates nothing and returns 0. Errors surface to the caller
// after rollback and after the failure has been recorded.
func (s *MergeService) MergeSmallAmounts(ctx context.Context, account *credit.Account, minAmount decimal.Decimal, batchSize int, strategy credit.TimeWindowStrategy, dryRun bool) (int, error) {
	if account == nil {
		return 0, credit.ErrNilAccount
	}
	start := s.clock.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveMergeRun(result, dryRun, s.clock.Now().Sub(start))
	}()

	statsBefore, err := s.stats.DetailedSmallAmountStats(ctx, account, minAmount, strategy)
	if err != nil {
		result = metrics.ResultError
		return 0, err
	}
	recordsBefore := statsBefore.Count

	op, err := s.recorder.Start(ctx, account, strategy, minAmount, batchSize, dryRun)
	if err != nil {
		result = metrics.ResultError
		return 0, err
	}

	s.logger.Info().
		Int64("operation_id", op.ID).
		Str("account_id", account.ID).
		Str("min_amount", minAmount.String()).
		Int("batch_size", batchSize).
		Str("strategy", string(strategy)).
		Bool("is_dry_run", dryRun).
		Int("records_before", recordsBefore).
		Msg("starting small amount merge")

	tx, err := s.uow.Begin(ctx)
	if err != nil {
		result = metrics.ResultError
		_ = s.recorder.Fail(ctx, op, err.Error(), s.clock.Now().Sub(start))
		return 0, err
	}

	mergedCount, statsAfter, err := s.runInsideTx(ctx, tx, account, minAmount, strategy, dryRun, statsBefore)
	if err != nil {
		result = metrics.ResultError
		_ = tx.Rollback()
		execTime := s.clock.Now().Sub(start)
		_ = s.recorder.Fail(ctx, op, err.Error(), execTime)
		s.logger.Error().
			Int64("operation_id", op.ID).
			Str("account_id", account.ID).
			Err(err).
			Dur("execution_time", execTime).
			Msg("small amount merge failed")
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		result = metrics.ResultError
		execTime := s.clock.Now().Sub(start)
		_ = s.recorder.Fail(ctx, op, err.Error(), execTime)
		return 0, err
	}

	recordsAfter := statsAfter.Count
	if dryRun {
		recordsAfter = recordsBefore
	}
	execTime := s.clock.Now().Sub(start)

	message := "merge completed"
	if dryRun {
		message = "dry run completed"
	}
	err = s.recorder.Complete(ctx, op, recordsBefore, recordsAfter, mergedCount, statsBefore.Total, execTime, message, map[string]any{
		"records_reduction": recordsBefore - recordsAfter,
		"merge_efficiency":  statsBefore.MergeEfficiency(),
		"average_amount":    statsBefore.AverageAmount(),
	})
	if err != nil {
		result = metrics.ResultError
		return 0, err
	}
	if _, err := s.recorder.Snapshot(ctx, statsBefore, strategy); err != nil {
		result = metrics.ResultError
		return 0, err
	}

	metrics.AddMergedRecords(mergedCount)
	s.logger.Info().
		Int64("operation_id", op.ID).
		Str("account_id", account.ID).
		Int("merge_count", mergedCount).
		Str("strategy", string(strategy)).
		Dur("execution_time", execTime).
		Int("records_before", recordsBefore).
		Int("records_after", recordsAfter).
		Bool("is_dry_run", dryRun).
		Msg("small amount merge finished")

	return mergedCount, nil
}

// runInsideTx performs the mutating half of a run plus the after-stats read,
// all through the open storage transaction so the stats see the run's own
// writes before they commit.
func (s *MergeService) runInsideTx(ctx context.Context, tx credit.UnitTx, account *credit.Account, minAmount decimal.Decimal, strategy credit.TimeWindowStrategy, dryRun bool, statsBefore *merge.SmallAmountStats) (int, *merge.SmallAmountStats, error) {
	mergedCount := 0
	if !dryRun {
		noExpiry, err := s.executor.MergeNoExpiryRecords(ctx, tx, account, minAmount)
		if err != nil {
			return 0, nil, err
		}
		mergedCount += noExpiry

		expiring, err := s.executor.MergeExpiryRecords(ctx, tx, account, minAmount, strategy)
		if err != nil {
			return 0, nil, err
		}
		mergedCount += expiring
	}

	if dryRun {
		return 0, statsBefore, nil
	}
	statsAfter, err := s.stats.DetailedStatsWith(ctx, tx.Transactions(), account, minAmount, strategy)
	if err != nil {
		return 0, nil, err
	}
	return mergedCount, statsAfter, nil
}

// GetSmallAmountStats returns the basic small-amount statistics.
func (s *MergeService) GetSmallAmountStats(ctx context.Context, account *credit.Account, threshold decimal.Decimal) (*merge.SmallAmountStats, error) {
	return s.stats.SmallAmountStats(ctx, account, threshold)
}

// GetDetailedSmallAmountStats returns statistics with window groups.
func (s *MergeService) GetDetailedSmallAmountStats(ctx context.Context, account *credit.Account, threshold decimal.Decimal, strategy credit.TimeWindowStrategy) (*merge.SmallAmountStats, error) {
	return s.stats.DetailedSmallAmountStats(ctx, account, threshold, strategy)
}

// GetSmallAmountDistribution returns the merge-potential breakdown.
func (s *MergeService) GetSmallAmountDistribution(ctx context.Context, account *credit.Account, minAmount decimal.Decimal) (*Distribution, error) {
	return s.stats.SmallAmountDistribution(ctx, account, minAmount)
}

// Recorder exposes the audit recorder for read-only callers.
func (s *MergeService) Recorder() *OperationRecorder {
	return s.recorder
}
