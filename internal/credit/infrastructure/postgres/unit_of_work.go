package postgres

import (
	"context"
	"database/sql"
	"errors"

	credit "credit-merge/internal/credit/domain"
)

// UnitOfWork opens database transactions that span the merge write path.
type UnitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork constructs a unit of work over the database.
func NewUnitOfWork(db *sql.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Begin starts a transaction and returns stores bound to it.
func (u *UnitOfWork) Begin(ctx context.Context) (credit.UnitTx, error) {
	if u == nil || u.db == nil {
		return nil, errors.New("unit of work: nil db")
	}
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &unitTx{
		tx:           tx,
		transactions: newTransactionRepositoryTx(tx),
		consumeLogs:  newConsumeLogRepositoryTx(tx),
	}, nil
}

type unitTx struct {
	tx           *sql.Tx
	transactions *TransactionRepository
	consumeLogs  *ConsumeLogRepository
}

func (t *unitTx) Transactions() credit.TransactionStore { return t.transactions }
func (t *unitTx) ConsumeLogs() credit.ConsumeLogStore   { return t.consumeLogs }
func (t *unitTx) Commit() error                         { return t.tx.Commit() }
func (t *unitTx) Rollback() error                       { return t.tx.Rollback() }
