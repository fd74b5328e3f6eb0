package credit

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single credit ledger entry. Amount is the originally
// granted value and stays untouched for audit; Balance is the remaining
// usable value and drops to zero once the entry is consumed.
type Transaction struct {
	ID         string
	AccountID  string
	EventNo    string
	Amount     decimal.Decimal
	Balance    decimal.Decimal
	Currency   string
	ExpireTime *time.Time
	Remark     string
	Context    map[string]any
	CreatedAt  time.Time
}

// IsSmallUnspent reports whether the entry qualifies for merging at the
// given ceiling: positive balance at or below the ceiling, never partially
// consumed.
func (t *Transaction) IsSmallUnspent(ceiling decimal.Decimal) bool {
	if t == nil {
		return false
	}
	if !t.Balance.IsPositive() {
		return false
	}
	if t.Balance.GreaterThan(ceiling) {
		return false
	}
	return t.Balance.Equal(t.Amount)
}

// ConsumeLog links a consumed source entry ("cost") to the entry that
// consumed it ("consume"). Written once at merge time, never mutated.
type ConsumeLog struct {
	ID                   string
	CostTransactionID    string
	ConsumeTransactionID string
	Amount               decimal.Decimal
	CreatedAt            time.Time
}
