package merge

import (
	"time"

	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
)

// WindowGroup collects the expiring entries that share one window key.
// Built fresh per merge run and discarded afterwards.
type WindowGroup struct {
	WindowKey      string
	Records        []*credit.Transaction
	Count          int
	TotalBalance   decimal.Decimal
	EarliestExpiry time.Time
	LatestExpiry   time.Time
}

// Add accumulates one record into the group.
func (g *WindowGroup) Add(record *credit.Transaction, expiry time.Time) {
	g.Records = append(g.Records, record)
	g.Count++
	g.TotalBalance = g.TotalBalance.Add(record.Balance)
	if g.EarliestExpiry.IsZero() || expiry.Before(g.EarliestExpiry) {
		g.EarliestExpiry = expiry
	}
	if expiry.After(g.LatestExpiry) {
		g.LatestExpiry = expiry
	}
}

// Mergeable reports whether the group holds enough records to merge.
// A single record is never merged.
func (g *WindowGroup) Mergeable() bool {
	return g != nil && g.Count > 1
}
