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

// OperationRepository persists merge-operation audit records.
type OperationRepository struct {
	db *sql.DB
}

// NewOperationRepository constructs a repository.
func NewOperationRepository(db *sql.DB) *OperationRepository {
	return &OperationRepository{db: db}
}

const operationColumns = `id, account_id, operation_time, strategy, min_amount_threshold, batch_size,
	is_dry_run, records_before, records_after, merged_records, total_amount,
	status, result_message, context, execution_time_ms, created_at, updated_at`

// Create inserts an operation record and fills in its generated id.
func (r *OperationRepository) Create(ctx context.Context, op *merge.MergeOperation) error {
	if r == nil || r.db == nil {
		return errors.New("operation repo: nil db")
	}
	if op == nil {
		return errors.New("operation repo: nil operation")
	}
	now := time.Now().UTC()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = now
	}
	op.UpdatedAt = now
	contextJSON, err := marshalJSON(op.Context)
	if err != nil {
		return err
	}
	return r.db.QueryRowContext(ctx, `
INSERT INTO credit_merge_operation (
	account_id, operation_time, strategy, min_amount_threshold, batch_size,
	is_dry_run, records_before, records_after, merged_records, total_amount,
	status, result_message, context, execution_time_ms, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING id`,
		op.AccountID, op.OperationTime, op.Strategy, op.MinAmountThreshold, op.BatchSize,
		op.IsDryRun, op.RecordsBefore, op.RecordsAfter, op.MergedRecords, op.TotalAmount,
		op.Status, op.ResultMessage, contextJSON, op.ExecutionTime.Milliseconds(),
		op.CreatedAt, op.UpdatedAt,
	).Scan(&op.ID)
}

// Update rewrites the mutable fields of an operation record.
func (r *OperationRepository) Update(ctx context.Context, op *merge.MergeOperation) error {
	if r == nil || r.db == nil {
		return errors.New("operation repo: nil db")
	}
	if op == nil {
		return errors.New("operation repo: nil operation")
	}
	op.UpdatedAt = time.Now().UTC()
	contextJSON, err := marshalJSON(op.Context)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE credit_merge_operation SET
	records_before = $1, records_after = $2, merged_records = $3, total_amount = $4,
	status = $5, result_message = $6, context = $7, execution_time_ms = $8, updated_at = $9
WHERE id = $10`,
		op.RecordsBefore, op.RecordsAfter, op.MergedRecords, op.TotalAmount,
		op.Status, op.ResultMessage, contextJSON, op.ExecutionTime.Milliseconds(),
		op.UpdatedAt, op.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("operation repo: operation %d not found", op.ID)
	}
	return nil
}

// List returns operations matching the filter, newest first.
func (r *OperationRepository) List(ctx context.Context, filter merge.OperationFilter) ([]*merge.MergeOperation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("operation repo: nil db")
	}
	query := `SELECT ` + operationColumns + ` FROM credit_merge_operation WHERE 1=1`
	var args []any
	if filter.AccountID != "" {
		args = append(args, filter.AccountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Strategy != "" {
		args = append(args, filter.Strategy)
		query += fmt.Sprintf(" AND strategy = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += fmt.Sprintf(" AND operation_time >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += fmt.Sprintf(" AND operation_time <= $%d", len(args))
	}
	query += " ORDER BY operation_time DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*merge.MergeOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, op)
	}
	return result, rows.Err()
}

// FindLatestByAccount returns the newest operation for an account, or nil.
func (r *OperationRepository) FindLatestByAccount(ctx context.Context, accountID string) (*merge.MergeOperation, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("operation repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+operationColumns+`
FROM credit_merge_operation
WHERE account_id = $1
ORDER BY operation_time DESC, id DESC
LIMIT 1`, accountID)
	op, err := scanOperation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return op, err
}

// SuccessSummary aggregates all successful, non-dry-run operations.
func (r *OperationRepository) SuccessSummary(ctx context.Context) (merge.OperationSummary, error) {
	if r == nil || r.db == nil {
		return merge.OperationSummary{}, errors.New("operation repo: nil db")
	}
	var summary merge.OperationSummary
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(id), COALESCE(SUM(merged_records), 0), COALESCE(SUM(total_amount), 0)
FROM credit_merge_operation
WHERE status = $1 AND is_dry_run = FALSE`, merge.StatusSuccess).
		Scan(&summary.Operations, &summary.MergedRecords, &summary.TotalAmount)
	if err != nil {
		return merge.OperationSummary{}, err
	}
	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*merge.MergeOperation, error) {
	var op merge.MergeOperation
	var resultMessage sql.NullString
	var contextJSON []byte
	var executionMs int64
	err := row.Scan(
		&op.ID, &op.AccountID, &op.OperationTime, &op.Strategy, &op.MinAmountThreshold,
		&op.BatchSize, &op.IsDryRun, &op.RecordsBefore, &op.RecordsAfter, &op.MergedRecords,
		&op.TotalAmount, &op.Status, &resultMessage, &contextJSON, &executionMs,
		&op.CreatedAt, &op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if resultMessage.Valid {
		op.ResultMessage = resultMessage.String
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &op.Context); err != nil {
			return nil, err
		}
	}
	op.ExecutionTime = time.Duration(executionMs) * time.Millisecond
	op.OperationTime = op.OperationTime.UTC()
	op.CreatedAt = op.CreatedAt.UTC()
	op.UpdatedAt = op.UpdatedAt.UTC()
	return &op, nil
}

func marshalJSON(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}
