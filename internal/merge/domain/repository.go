package merge

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
)

// OperationFilter narrows admin listings of merge operations.
type OperationFilter struct {
	AccountID string
	Status    OperationStatus
	Strategy  credit.TimeWindowStrategy
	From      time.Time
	To        time.Time
	Limit     int
}

// OperationSummary aggregates successful runs.
type OperationSummary struct {
	Operations    int
	MergedRecords int
	TotalAmount   decimal.Decimal
}

// OperationStore persists merge-operation audit records.
type OperationStore interface {
	Create(ctx context.Context, op *MergeOperation) error
	Update(ctx context.Context, op *MergeOperation) error
	List(ctx context.Context, filter OperationFilter) ([]*MergeOperation, error)
	FindLatestByAccount(ctx context.Context, accountID string) (*MergeOperation, error)
	SuccessSummary(ctx context.Context) (OperationSummary, error)
}

// StatisticsFilter narrows admin listings of statistics snapshots.
type StatisticsFilter struct {
	AccountID string
	Strategy  credit.TimeWindowStrategy
	From      time.Time
	To        time.Time
	Limit     int
}

// StatisticsStore persists merge-statistics snapshots.
type StatisticsStore interface {
	Create(ctx context.Context, stats *MergeStatistics) error
	List(ctx context.Context, filter StatisticsFilter) ([]*MergeStatistics, error)
	FindLatestByAccount(ctx context.Context, accountID string) (*MergeStatistics, error)
}
