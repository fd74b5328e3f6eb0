package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	merge "credit-merge/internal/merge/domain"
)

// AuditStore is an in-memory implementation of the merge audit stores.
type AuditStore struct {
	mu         sync.Mutex
	operations []*merge.MergeOperation
	statistics []*merge.MergeStatistics
	nextOpID   int64
	nextStatID int64
}

// NewAuditStore returns an empty store.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Create implements merge.OperationStore.
func (s *AuditStore) Create(ctx context.Context, op *merge.MergeOperation) error {
	if op == nil {
		return errors.New("audit store: nil operation")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOpID++
	op.ID = s.nextOpID
	now := time.Now().UTC()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	op.UpdatedAt = now
	copied := *op
	s.operations = append(s.operations, &copied)
	return nil
}

// Update implements merge.OperationStore.
func (s *AuditStore) Update(ctx context.Context, op *merge.MergeOperation) error {
	if op == nil {
		return errors.New("audit store: nil operation")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.operations {
		if existing.ID == op.ID {
			op.UpdatedAt = time.Now().UTC()
			copied := *op
			s.operations[i] = &copied
			return nil
		}
	}
	return fmt.Errorf("audit store: operation %d not found", op.ID)
}

// List implements merge.OperationStore.
func (s *AuditStore) List(ctx context.Context, filter merge.OperationFilter) ([]*merge.MergeOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*merge.MergeOperation
	for _, op := range s.operations {
		if filter.AccountID != "" && op.AccountID != filter.AccountID {
			continue
		}
		if filter.Status != "" && op.Status != filter.Status {
			continue
		}
		if filter.Strategy != "" && op.Strategy != filter.Strategy {
			continue
		}
		if !filter.From.IsZero() && op.OperationTime.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && op.OperationTime.After(filter.To) {
			continue
		}
		copied := *op
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].OperationTime.Equal(result[j].OperationTime) {
			return result[i].ID > result[j].ID
		}
		return result[i].OperationTime.After(result[j].OperationTime)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// FindLatestByAccount implements merge.OperationStore.
func (s *AuditStore) FindLatestByAccount(ctx context.Context, accountID string) (*merge.MergeOperation, error) {
	ops, err := s.List(ctx, merge.OperationFilter{AccountID: accountID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}
	return ops[0], nil
}

// SuccessSummary implements merge.OperationStore.
func (s *AuditStore) SuccessSummary(ctx context.Context) (merge.OperationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := merge.OperationSummary{TotalAmount: decimal.Zero}
	for _, op := range s.operations {
		if op.Status != merge.StatusSuccess || op.IsDryRun {
			continue
		}
		summary.Operations++
		summary.MergedRecords += op.MergedRecords
		summary.TotalAmount = summary.TotalAmount.Add(op.TotalAmount)
	}
	return summary, nil
}

// Operations returns a copy of every stored operation for inspection.
func (s *AuditStore) Operations() []*merge.MergeOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*merge.MergeOperation, 0, len(s.operations))
	for _, op := range s.operations {
		copied := *op
		result = append(result, &copied)
	}
	return result
}

// StatisticsStore view of the same store.

// CreateStatistics records a statistics snapshot.
func (s *AuditStore) CreateStatistics(ctx context.Context, stats *merge.MergeStatistics) error {
	if stats == nil {
		return errors.New("audit store: nil statistics")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStatID++
	stats.ID = s.nextStatID
	if stats.CreatedAt.IsZero() {
		stats.CreatedAt = time.Now().UTC()
	}
	copied := *stats
	s.statistics = append(s.statistics, &copied)
	return nil
}

// ListStatistics returns snapshots matching the filter, newest first.
func (s *AuditStore) ListStatistics(ctx context.Context, filter merge.StatisticsFilter) ([]*merge.MergeStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*merge.MergeStatistics
	for _, stats := range s.statistics {
		if filter.AccountID != "" && stats.AccountID != filter.AccountID {
			continue
		}
		if filter.Strategy != "" && stats.Strategy != filter.Strategy {
			continue
		}
		if !filter.From.IsZero() && stats.StatisticsTime.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && stats.StatisticsTime.After(filter.To) {
			continue
		}
		copied := *stats
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StatisticsTime.Equal(result[j].StatisticsTime) {
			return result[i].ID > result[j].ID
		}
		return result[i].StatisticsTime.After(result[j].StatisticsTime)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// FindLatestStatisticsByAccount returns the newest snapshot, or nil.
func (s *AuditStore) FindLatestStatisticsByAccount(ctx context.Context, accountID string) (*merge.MergeStatistics, error) {
	snapshots, err := s.ListStatistics(ctx, merge.StatisticsFilter{AccountID: accountID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil
	}
	return snapshots[0], nil
}

// StatisticsView adapts the store to merge.StatisticsStore; the method names
// would otherwise collide with the operation store on the same type.
type StatisticsView struct {
	store *AuditStore
}

// Statistics returns the statistics-store view.
func (s *AuditStore) Statistics() *StatisticsView {
	return &StatisticsView{store: s}
}

func (v *StatisticsView) Create(ctx context.Context, stats *merge.MergeStatistics) error {
	return v.store.CreateStatistics(ctx, stats)
}

func (v *StatisticsView) List(ctx context.Context, filter merge.StatisticsFilter) ([]*merge.MergeStatistics, error) {
	return v.store.ListStatistics(ctx, filter)
}

func (v *StatisticsView) FindLatestByAccount(ctx context.Context, accountID string) (*merge.MergeStatistics, error) {
	return v.store.FindLatestStatisticsByAccount(ctx, accountID)
}
