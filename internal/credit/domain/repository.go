package credit

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransactionStore is the persistence contract for credit transactions.
// Storage errors propagate unchanged; the store never retries.
type TransactionStore interface {
	// FindMergeableNoExpiry returns small unspent entries without an expiry:
	// balance > 0, balance <= ceiling, balance = amount, expire_time IS NULL.
	FindMergeableNoExpiry(ctx context.Context, accountID string, ceiling decimal.Decimal) ([]*Transaction, error)

	// FindMergeableWithExpiry returns small unspent entries carrying an
	// expiry, sorted ascending by expiry.
	FindMergeableWithExpiry(ctx context.Context, accountID string, ceiling decimal.Decimal) ([]*Transaction, error)

	// AggregateSmall counts and sums all positive balances at or below the
	// threshold, whether or not partially spent.
	AggregateSmall(ctx context.Context, accountID string, threshold decimal.Decimal) (int, decimal.Decimal, error)

	// AggregateSmallNoExpiry is AggregateSmall restricted to entries
	// without an expiry.
	AggregateSmallNoExpiry(ctx context.Context, accountID string, threshold decimal.Decimal) (int, decimal.Decimal, error)

	// ListSmallWithExpiry returns small-balance entries carrying an expiry,
	// sorted ascending by expiry, for window grouping in statistics.
	ListSmallWithExpiry(ctx context.Context, accountID string, threshold decimal.Decimal) ([]*Transaction, error)

	// ConsumptionPreview reports how many entries a spend of the given
	// amount would consume, walking balances in expiry order.
	ConsumptionPreview(ctx context.Context, accountID string, costAmount decimal.Decimal) (int, error)

	// Create persists a new transaction.
	Create(ctx context.Context, tx *Transaction) error

	// ZeroBalance marks a transaction fully consumed. Amount is untouched.
	ZeroBalance(ctx context.Context, transactionID string) error
}

// ConsumeLogStore persists consumption-log rows.
type ConsumeLogStore interface {
	Create(ctx context.Context, log *ConsumeLog) error
}

// AccountStore resolves accounts.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
}

// UnitOfWork opens a storage transaction covering one merge run.
type UnitOfWork interface {
	Begin(ctx context.Context) (UnitTx, error)
}

// UnitTx exposes the stores bound to one open storage transaction.
// Writes are invisible to other readers until Commit; Rollback discards them.
type UnitTx interface {
	Transactions() TransactionStore
	ConsumeLogs() ConsumeLogStore
	Commit() error
	Rollback() error
}
