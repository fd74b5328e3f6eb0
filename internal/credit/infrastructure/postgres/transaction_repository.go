package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx so the same repository
// serves reads outside and writes inside the unit of work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TransactionRepository is the Postgres store for credit transactions.
type TransactionRepository struct {
	q querier
}

// NewTransactionRepository constructs a repository over the database.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{q: db}
}

// newTransactionRepositoryTx binds a repository to an open transaction.
func newTransactionRepositoryTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

const transactionColumns = `id, account_id, event_no, amount, balance, currency, expire_time, remark, context, created_at`

// FindMergeableNoExpiry returns small unspent entries without an expiry.
func (r *TransactionRepository) FindMergeableNoExpiry(ctx context.Context, accountID string, ceiling decimal.Decimal) ([]*credit.Transaction, error) {
	if r == nil || r.q == nil {
		return nil, errors.New("transaction repo: nil db")
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM credit_transaction
WHERE account_id = $1
	AND balance > 0 AND balance <= $2
	AND balance = amount
	AND expire_time IS NULL
ORDER BY created_at`, accountID, ceiling)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// FindMergeableWithExpiry returns small unspent entries with an expiry,
// sorted ascending by expiry.
func (r *TransactionRepository) FindMergeableWithExpiry(ctx context.Context, accountID string, ceiling decimal.Decimal) ([]*credit.Transaction, error) {
	if r == nil || r.q == nil {
		return nil, errors.New("transaction repo: nil db")
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM credit_transaction
WHERE account_id = $1
	AND balance > 0 AND balance <= $2
	AND balance = amount
	AND expire_time IS NOT NULL
ORDER BY expire_time ASC`, accountID, ceiling)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// AggregateSmall counts and sums all positive small balances.
func (r *TransactionRepository) AggregateSmall(ctx context.Context, accountID string, threshold decimal.Decimal) (int, decimal.Decimal, error) {
	return r.aggregate(ctx, `
SELECT COUNT(id), COALESCE(SUM(balance), 0)
FROM credit_transaction
WHERE account_id = $1
	AND balance > 0 AND balance <= $2`, accountID, threshold)
}

// AggregateSmallNoExpiry restricts AggregateSmall to entries without expiry.
func (r *TransactionRepository) AggregateSmallNoExpiry(ctx context.Context, accountID string, threshold decimal.Decimal) (int, decimal.Decimal, error) {
	return r.aggregate(ctx, `
SELECT COUNT(id), COALESCE(SUM(balance), 0)
FROM credit_transaction
WHERE account_id = $1
	AND balance > 0 AND balance <= $2
	AND expire_time IS NULL`, accountID, threshold)
}

func (r *TransactionRepository) aggregate(ctx context.Context, query, accountID string, threshold decimal.Decimal) (int, decimal.Decimal, error) {
	if r == nil || r.q == nil {
		return 0, decimal.Zero, errors.New("transaction repo: nil db")
	}
	var count int
	var total decimal.Decimal
	if err := r.q.QueryRowContext(ctx, query, accountID, threshold).Scan(&count, &total); err != nil {
		return 0, decimal.Zero, err
	}
	return count, total, nil
}

// ListSmallWithExpiry returns expiring small-balance entries for statistics.
func (r *TransactionRepository) ListSmallWithExpiry(ctx context.Context, accountID string, threshold decimal.Decimal) ([]*credit.Transaction, error) {
	if r == nil || r.q == nil {
		return nil, errors.New("transaction repo: nil db")
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT `+transactionColumns+`
FROM credit_transaction
WHERE account_id = $1
	AND balance > 0 AND balance <= $2
	AND expire_time IS NOT NULL
ORDER BY expire_time ASC`, accountID, threshold)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// ConsumptionPreview walks positive balances in expiry order and reports how
// many rows a spend of costAmount would consume.
func (r *TransactionRepository) ConsumptionPreview(ctx context.Context, accountID string, costAmount decimal.Decimal) (int, error) {
	if r == nil || r.q == nil {
		return 0, errors.New("transaction repo: nil db")
	}
	rows, err := r.q.QueryContext(ctx, `
SELECT balance
FROM credit_transaction
WHERE account_id = $1 AND balance > 0
ORDER BY expire_time ASC NULLS LAST, created_at`, accountID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	covered := decimal.Zero
	for rows.Next() {
		var balance decimal.Decimal
		if err := rows.Scan(&balance); err != nil {
			return 0, err
		}
		count++
		covered = covered.Add(balance)
		if covered.GreaterThanOrEqual(costAmount) {
			break
		}
	}
	return count, rows.Err()
}

// Create persists a new transaction, assigning an id when missing.
func (r *TransactionRepository) Create(ctx context.Context, tx *credit.Transaction) error {
	if r == nil || r.q == nil {
		return errors.New("transaction repo: nil db")
	}
	if tx == nil {
		return errors.New("transaction repo: nil transaction")
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	contextJSON, err := marshalContext(tx.Context)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
INSERT INTO credit_transaction (
	id, account_id, event_no, amount, balance, currency, expire_time, remark, context, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		tx.ID, tx.AccountID, tx.EventNo, tx.Amount, tx.Balance, tx.Currency,
		nullableTime(tx.ExpireTime), tx.Remark, contextJSON, tx.CreatedAt)
	return err
}

// ZeroBalance marks a transaction fully consumed.
func (r *TransactionRepository) ZeroBalance(ctx context.Context, transactionID string) error {
	if r == nil || r.q == nil {
		return errors.New("transaction repo: nil db")
	}
	result, err := r.q.ExecContext(ctx, `
UPDATE credit_transaction SET balance = 0 WHERE id = $1`, transactionID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("transaction repo: transaction not found")
	}
	return nil
}

func scanTransactions(rows *sql.Rows) ([]*credit.Transaction, error) {
	defer rows.Close()
	var result []*credit.Transaction
	for rows.Next() {
		var tx credit.Transaction
		var expireTime sql.NullTime
		var contextJSON []byte
		err := rows.Scan(
			&tx.ID, &tx.AccountID, &tx.EventNo, &tx.Amount, &tx.Balance,
			&tx.Currency, &expireTime, &tx.Remark, &contextJSON, &tx.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		if expireTime.Valid {
			t := expireTime.Time
			tx.ExpireTime = &t
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &tx.Context); err != nil {
				return nil, err
			}
		}
		result = append(result, &tx)
	}
	return result, rows.Err()
}

func marshalContext(value map[string]any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
