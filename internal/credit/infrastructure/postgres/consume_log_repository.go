package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	credit "credit-merge/internal/credit/domain"
)

// ConsumeLogRepository is the Postgres store for consume logs. Writes only
// happen inside a merge transaction, so construction is tx-bound.
type ConsumeLogRepository struct {
	q querier
}

func newConsumeLogRepositoryTx(tx *sql.Tx) *ConsumeLogRepository {
	return &ConsumeLogRepository{q: tx}
}

// Create persists a consume log, assigning an id when missing.
func (r *ConsumeLogRepository) Create(ctx context.Context, log *credit.ConsumeLog) error {
	if r == nil || r.q == nil {
		return errors.New("consume log repo: nil db")
	}
	if log == nil {
		return errors.New("consume log repo: nil log")
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.ExecContext(ctx, `
INSERT INTO credit_consume_log (
	id, cost_transaction_id, consume_transaction_id, amount, created_at
) VALUES ($1,$2,$3,$4,$5)`,
		log.ID, log.CostTransactionID, log.ConsumeTransactionID, log.Amount, log.CreatedAt)
	return err
}
