package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	credit "credit-merge/internal/credit/domain"
)

// AccountRepository is the Postgres store for credit accounts.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository constructs a repository over the database.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID fetches one account.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*credit.Account, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("account repo: nil db")
	}
	var account credit.Account
	err := r.db.QueryRowContext(ctx, `
SELECT id, name, currency FROM credit_account WHERE id = $1`, id).
		Scan(&account.ID, &account.Name, &account.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, credit.ErrAccountNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// List returns all accounts ordered by id.
func (r *AccountRepository) List(ctx context.Context) ([]*credit.Account, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("account repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, currency FROM credit_account ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*credit.Account
	for rows.Next() {
		var account credit.Account
		if err := rows.Scan(&account.ID, &account.Name, &account.Currency); err != nil {
			return nil, err
		}
		accounts = append(accounts, &account)
	}
	return accounts, rows.Err()
}
