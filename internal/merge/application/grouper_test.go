package application

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
)

func expiringTx(id string, balance string, expiry time.Time) *credit.Transaction {
	amount := decimal.RequireFromString(balance)
	return &credit.Transaction{
		ID:         id,
		AccountID:  "acct-1",
		Amount:     amount,
		Balance:    amount,
		ExpireTime: &expiry,
	}
}

func TestGroupByTimeWindowMonth(t *testing.T) {
	october := time.Date(2023, 10, 10, 0, 0, 0, 0, time.UTC)
	octoberLate := time.Date(2023, 10, 26, 0, 0, 0, 0, time.UTC)
	november := time.Date(2023, 11, 2, 0, 0, 0, 0, time.UTC)

	records := []*credit.Transaction{
		expiringTx("tx-1", "1.0", octoberLate),
		expiringTx("tx-2", "2.0", october),
		expiringTx("tx-3", "1.5", november),
	}

	grouped := GroupByTimeWindow(records, credit.StrategyMonth)
	if len(grouped) != 2 {
		t.Fatalf("groups: got=%d want=2", len(grouped))
	}

	oct := grouped["2023-10"]
	if oct == nil || oct.Count != 2 {
		t.Fatalf("october group missing or wrong count: %+v", oct)
	}
	if !oct.TotalBalance.Equal(decimal.RequireFromString("3.0")) {
		t.Fatalf("october total: got=%s want=3.0", oct.TotalBalance)
	}
	if !oct.EarliestExpiry.Equal(october) {
		t.Fatalf("october earliest expiry: got=%s want=%s", oct.EarliestExpiry, october)
	}

	nov := grouped["2023-11"]
	if nov == nil || nov.Count != 1 {
		t.Fatalf("november group missing or wrong count: %+v", nov)
	}
	if nov.Mergeable() {
		t.Fatalf("single-record group should not be mergeable")
	}
}

func TestGroupByTimeWindowSkipsNoExpiry(t *testing.T) {
	expiry := time.Date(2023, 10, 10, 0, 0, 0, 0, time.UTC)
	records := []*credit.Transaction{
		expiringTx("tx-1", "1.0", expiry),
		{ID: "tx-2", Balance: decimal.NewFromInt(1)},
		nil,
	}
	grouped := GroupByTimeWindow(records, credit.StrategyDay)
	if len(grouped) != 1 {
		t.Fatalf("groups: got=%d want=1", len(grouped))
	}
	if group := grouped["2023-10-10"]; group == nil || group.Count != 1 {
		t.Fatalf("day group missing or wrong count: %+v", group)
	}
}

func TestGroupByTimeWindowAllStrategy(t *testing.T) {
	records := []*credit.Transaction{
		expiringTx("tx-1", "1.0", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)),
		expiringTx("tx-2", "2.0", time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)),
	}
	grouped := GroupByTimeWindow(records, credit.StrategyAll)
	if len(grouped) != 1 {
		t.Fatalf("groups: got=%d want=1", len(grouped))
	}
	if group := grouped["all"]; group == nil || group.Count != 2 {
		t.Fatalf("all group missing or wrong count: %+v", group)
	}
}
