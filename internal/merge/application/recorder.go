package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
	merge "credit-merge/internal/merge/domain"
	"credit-merge/internal/observability/metrics"
)

// OperationRecorder writes the audit trail of merge runs: one MergeOperation
// per run plus one MergeStatistics snapshot. Writes must be durable before
// the orchestrator's own transaction control point, so the recorder never
// participates in the merge's storage transaction.
type OperationRecorder struct {
	operations merge.OperationStore
	statistics merge.StatisticsStore
	logger     zerolog.Logger
	clock      Clock
}

// NewOperationRecorder constructs a recorder.
func NewOperationRecorder(operations merge.OperationStore, statistics merge.StatisticsStore, logger zerolog.Logger, clock Clock) *OperationRecorder {
	if clock == nil {
		clock = SystemClock{}
	}
	return &OperationRecorder{
		operations: operations,
		statistics: statistics,
		logger:     logger,
		clock:      clock,
	}
}

// Start persists a running operation record for the merge about to run.
func (r *OperationRecorder) Start(ctx context.Context, account *credit.Account, strategy credit.TimeWindowStrategy, minAmount decimal.Decimal, batchSize int, dryRun bool) (*merge.MergeOperation, error) {
	now := r.clock.Now()
	op := &merge.MergeOperation{
		AccountID:          account.ID,
		OperationTime:      now,
		Strategy:           strategy,
		MinAmountThreshold: minAmount,
		BatchSize:          batchSize,
		IsDryRun:           dryRun,
		TotalAmount:        decimal.Zero,
		Status:             merge.StatusRunning,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := r.operations.Create(ctx, op); err != nil {
		return nil, err
	}
	r.logger.Info().
		Int64("operation_id", op.ID).
		Str("account_id", account.ID).
		Str("strategy", string(strategy)).
		Bool("is_dry_run", dryRun).
		Msg("merge operation started")
	return op, nil
}

// Complete finalizes a successful run.
func (r *OperationRecorder) Complete(ctx context.Context, op *merge.MergeOperation, recordsBefore, recordsAfter, mergedCount int, totalAmount decimal.Decimal, execTime time.Duration, message string, opContext map[string]any) error {
	op.RecordsBefore = recordsBefore
	op.RecordsAfter = recordsAfter
	op.MergedRecords = mergedCount
	op.TotalAmount = totalAmount
	op.Status = merge.StatusSuccess
	op.ExecutionTime = execTime
	op.ResultMessage = message
	op.Context = opContext
	op.UpdatedAt = r.clock.Now()
	if err := r.operations.Update(ctx, op); err != nil {
		return err
	}
	r.logger.Info().
		Int64("operation_id", op.ID).
		Int("records_before", recordsBefore).
		Int("records_after", recordsAfter).
		Int("merged_count", mergedCount).
		Str("total_amount", totalAmount.String()).
		Msg("merge operation completed")
	return nil
}

// Fail finalizes a failed run with the error message.
func (r *OperationRecorder) Fail(ctx context.Context, op *merge.MergeOperation, errorMessage string, execTime time.Duration) error {
	op.Status = merge.StatusFailed
	op.ResultMessage = errorMessage
	op.ExecutionTime = execTime
	op.UpdatedAt = r.clock.Now()
	if err := r.operations.Update(ctx, op); err != nil {
		return err
	}
	r.logger.Error().
		Int64("operation_id", op.ID).
		Str("error", errorMessage).
		Msg("merge operation failed")
	return nil
}

// Snapshot persists an immutable statistics snapshot derived from the stats
// object. MergeableRecords is the full count when anything is mergeable at
// all, zero otherwise.
func (r *OperationRecorder) Snapshot(ctx context.Context, stats *merge.SmallAmountStats, strategy credit.TimeWindowStrategy) (*merge.MergeStatistics, error) {
	now := r.clock.Now()
	mergeable := 0
	if stats.HasMergeableRecords() {
		mergeable = stats.Count
	}
	snapshot := &merge.MergeStatistics{
		AccountID:                stats.AccountID,
		StatisticsTime:           now,
		Strategy:                 strategy,
		MinAmountThreshold:       stats.Threshold,
		TotalSmallRecords:        stats.Count,
		TotalSmallAmount:         stats.Total,
		MergeableRecords:         mergeable,
		PotentialRecordReduction: stats.PotentialRecordReduction(),
		MergeEfficiency:          stats.MergeEfficiency(),
		AverageAmount:            stats.AverageAmount(),
		TimeWindowGroups:         len(stats.GroupStats),
		GroupStats:               stats.GroupStats,
		Context: map[string]any{
			"has_mergeable_records": stats.HasMergeableRecords(),
			"strategy":              string(strategy),
		},
		CreatedAt: now,
	}
	if err := r.statistics.Create(ctx, snapshot); err != nil {
		return nil, err
	}
	metrics.IncStatsSnapshot()
	r.logger.Info().
		Int64("statistics_id", snapshot.ID).
		Str("account_id", stats.AccountID).
		Int("total_records", stats.Count).
		Float64("merge_efficiency", snapshot.MergeEfficiency).
		Msg("merge statistics recorded")
	return snapshot, nil
}

// LatestOperation returns the most recent operation for an account.
func (r *OperationRecorder) LatestOperation(ctx context.Context, accountID string) (*merge.MergeOperation, error) {
	return r.operations.FindLatestByAccount(ctx, accountID)
}

// LatestStatistics returns the most recent statistics snapshot for an account.
func (r *OperationRecorder) LatestStatistics(ctx context.Context, accountID string) (*merge.MergeStatistics, error) {
	return r.statistics.FindLatestByAccount(ctx, accountID)
}

// OperationsSummary aggregates all successful operations.
func (r *OperationRecorder) OperationsSummary(ctx context.Context) (merge.OperationSummary, error) {
	return r.operations.SuccessSummary(ctx)
}
