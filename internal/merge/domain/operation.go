package merge

import (
	"time"

	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
)

// OperationStatus is the lifecycle state of a merge run.
type OperationStatus string

const (
	StatusPending OperationStatus = "pending"
	StatusRunning OperationStatus = "running"
	StatusSuccess OperationStatus = "success"
	StatusFailed  OperationStatus = "failed"
	// StatusPartial is reserved in the schema; the merge algorithm itself
	// never produces it. A run either fully succeeds or fully fails.
	StatusPartial OperationStatus = "partial"
)

// MergeOperation is the persisted audit record of one merge run. Created
// with status running before the storage transaction opens, finalized to
// success or failed afterwards, never deleted.
type MergeOperation struct {
	ID                 int64
	AccountID          string
	OperationTime      time.Time
	Strategy           credit.TimeWindowStrategy
	MinAmountThreshold decimal.Decimal
	BatchSize          int
	IsDryRun           bool
	RecordsBefore      int
	RecordsAfter       int
	MergedRecords      int
	TotalAmount        decimal.Decimal
	Status             OperationStatus
	ResultMessage      string
	Context            map[string]any
	ExecutionTime      time.Duration
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MergeStatistics is an immutable snapshot of an account's merge potential,
// written once per merge run or stats query.
type MergeStatistics struct {
	ID                       int64
	AccountID                string
	StatisticsTime           time.Time
	Strategy                 credit.TimeWindowStrategy
	MinAmountThreshold       decimal.Decimal
	TotalSmallRecords        int
	TotalSmallAmount         decimal.Decimal
	MergeableRecords         int
	PotentialRecordReduction int
	MergeEfficiency          float64
	AverageAmount            decimal.Decimal
	TimeWindowGroups         int
	GroupStats               map[string]WindowGroupStat
	Context                  map[string]any
	CreatedAt                time.Time
}
