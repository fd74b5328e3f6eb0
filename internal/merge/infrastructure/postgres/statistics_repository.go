package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	merge "credit-merge/internal/merge/domain"
)

// StatisticsRepository persists merge-statistics snapshots.
type StatisticsRepository struct {
	db *sql.DB
}

// NewStatisticsRepository constructs a repository.
func NewStatisticsRepository(db *sql.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

const statisticsColumns = `id, account_id, statistics_time, strategy, min_amount_threshold,
	total_small_records, total_small_amount, mergeable_records, potential_record_reduction,
	merge_efficiency, average_amount, time_window_groups, group_stats, context, created_at`

// Create inserts a statistics snapshot and fills in its generated id.
func (r *StatisticsRepository) Create(ctx context.Context, stats *merge.MergeStatistics) error {
	if r == nil || r.db == nil {
		return errors.New("statistics repo: nil db")
	}
	if stats == nil {
		return errors.New("statistics repo: nil statistics")
	}
	if stats.CreatedAt.IsZero() {
		stats.CreatedAt = time.Now().UTC()
	}
	groupJSON, err := marshalJSON(stats.GroupStats)
	if err != nil {
		return err
	}
	contextJSON, err := marshalJSON(stats.Context)
	if err != nil {
		return err
	}
	return r.db.QueryRowContext(ctx, `
INSERT INTO credit_merge_statistics (
	account_id, statistics_time, strategy, min_amount_threshold,
	total_small_records, total_small_amount, mergeable_records, potential_record_reduction,
	merge_efficiency, average_amount, time_window_groups, group_stats, context, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
RETURNING id`,
		stats.AccountID, stats.StatisticsTime, stats.Strategy, stats.MinAmountThreshold,
		stats.TotalSmallRecords, stats.TotalSmallAmount, stats.MergeableRecords, stats.PotentialRecordReduction,
		stats.MergeEfficiency, stats.AverageAmount, stats.TimeWindowGroups, groupJSON, contextJSON,
		stats.CreatedAt,
	).Scan(&stats.ID)
}

// List returns snapshots matching the filter, newest first.
func (r *StatisticsRepository) List(ctx context.Context, filter merge.StatisticsFilter) ([]*merge.MergeStatistics, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statistics repo: nil db")
	}
	query := `SELECT ` + statisticsColumns + ` FROM credit_merge_statistics WHERE 1=1`
	var args []any
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if filter.Strategy != "" {
		args = append(args, filter.Strategy)
		query += fmt.Sprintf(" AND strategy = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND statistics_time >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND statistics_time <= $%d", len(args))
	}
	query += " ORDER BY statistics_time DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*merge.MergeStatistics
	for rows.Next() {
		stats, err := scanStatistics(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, stats)
	}
	return result, rows.Err()
}

// FindLatestByAccount returns the newest snapshot for an account, or nil.
func (r *StatisticsRepository) FindLatestByAccount(ctx context.Context, accountID string) (*merge.MergeStatistics, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statistics repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+statisticsColumns+`
FROM credit_merge_statistics
WHERE account_id = $1
ORDER BY statistics_time DESC, id DESC
LIMIT 1`, accountID)
	stats, err := scanStatistics(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return stats, err
}

func scanStatistics(row rowScanner) (*merge.MergeStatistics, error) {
	var stats merge.MergeStatistics
	var groupJSON []byte
	var contextJSON []byte
	err := row.Scan(
		&stats.ID, &stats.AccountID, &stats.StatisticsTime, &stats.Strategy, &stats.MinAmountThreshold,
		&stats.TotalSmallRecords, &stats.TotalSmallAmount, &stats.MergeableRecords, &stats.PotentialRecordReduction,
		&stats.MergeEfficiency, &stats.AverageAmount, &stats.TimeWindowGroups, &groupJSON, &contextJSON,
		&stats.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(groupJSON) > 0 {
		if err := json.Unmarshal(groupJSON, &stats.GroupStats); err != nil {
			return nil, err
		}
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &stats.Context); err != nil {
			return nil, err
		}
	}
	stats.StatisticsTime = stats.StatisticsTime.UTC()
	stats.CreatedAt = stats.CreatedAt.UTC()
	return &stats, nil
}
