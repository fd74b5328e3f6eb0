package application

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
	creditmemory "credit-merge/internal/credit/infrastructure/memory"
	"credit-merge/internal/logger"
	merge "credit-merge/internal/merge/domain"
	mergememory "credit-merge/internal/merge/infrastructure/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fixture struct {
	store   *creditmemory.Store
	audit   *mergememory.AuditStore
	service *MergeService
	account *credit.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithUow(t, nil)
}

// newFixtureWithUow lets a test swap in a wrapped unit of work.
func newFixtureWithUow(t *testing.T, uow credit.UnitOfWork) *fixture {
	t.Helper()

	store := creditmemory.NewStore()
	account := &credit.Account{ID: "acct-1", Name: "primary", Currency: "CNY"}
	store.PutAccount(account)

	if uow == nil {
		uow = creditmemory.NewUnitOfWork(store)
	}
	audit := mergememory.NewAuditStore()

	log := logger.NewWithWriter(io.Discard)
	clock := fixedClock{now: time.Date(2023, 10, 20, 12, 0, 0, 0, time.UTC)}
	stats := NewStatsService(store)
	recorder := NewOperationRecorder(audit, audit.Statistics(), log, clock)
	executor := NewMergeExecutor(log, clock)

	service, err := NewMergeService(uow, store, stats, recorder, executor, log, clock)
	if err != nil {
		t.Fatalf("new merge service: %v", err)
	}
	return &fixture{store: store, audit: audit, service: service, account: account}
}

func (f *fixture) seedNoExpiry(t *testing.T, balances ...string) {
	t.Helper()
	for _, balance := range balances {
		amount := decimal.RequireFromString(balance)
		f.store.PutTransaction(&credit.Transaction{
			AccountID: f.account.ID,
			Amount:    amount,
			Balance:   amount,
			Currency:  f.account.Currency,
		})
	}
}

func (f *fixture) seedExpiring(t *testing.T, balance string, expiry time.Time) {
	t.Helper()
	amount := decimal.RequireFromString(balance)
	f.store.PutTransaction(&credit.Transaction{
		AccountID:  f.account.ID,
		Amount:     amount,
		Balance:    amount,
		Currency:   f.account.Currency,
		ExpireTime: &expiry,
	})
}

func TestMergeSmallAmountsNoExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNoExpiry(t, "1.0", "2.0", "1.5")

	merged, err := f.service.MergeSmallAmounts(ctx, f.account, decimal.NewFromInt(5), DefaultBatchSize, credit.StrategyMonth, false)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged != 3 {
		t.Fatalf("merged: got=%d want=3", merged)
	}

	transactions := f.store.Transactions(f.account.ID)
	if len(transactions) != 4 {
		t.Fatalf("transactions after merge: got=%d want=4", len(transactions))
	}

	var mergedTx *credit.Transaction
	zeroed := 0
	for _, tx := range transactions {
		if tx.Balance.IsZero() {
			zeroed++
			continue
		}
		mergedTx = tx
	}
	if zeroed != 3 {
		t.Fatalf("zeroed sources: got=%d want=3", zeroed)
	}
	if mergedTx == nil {
		t.Fatalf("consolidated transaction missing")
	}
	if !mergedTx.Balance.Equal(decimal.RequireFromString("4.5")) {
		t.Fatalf("consolidated balance: got=%s want=4.5", mergedTx.Balance)
	}
	if !mergedTx.Amount.Equal(mergedTx.Balance) {
		t.Fatalf("consolidated amount should equal balance")
	}
	if mergedTx.Currency != f.account.Currency {
		t.Fatalf("consolidated currency: got=%s want=%s", mergedTx.Currency, f.account.Currency)
	}
	if mergedTx.ExpireTime != nil {
		t.Fatalf("no-expiry merge should produce no expiry")
	}
	if mergedTx.EventNo == "" {
		t.Fatalf("consolidated event number missing")
	}
	if mergedTx.Context["merge_strategy"] != credit.WindowKeyNoExpiry {
		t.Fatalf("merge strategy context: got=%v", mergedTx.Context["merge_strategy"])
	}

	logs := f.store.ConsumeLogs()
	if len(logs) != 3 {
		t.Fatalf("consume logs: got=%d want=3", len(logs))
	}
	logged := decimal.Zero
	for _, log := range logs {
		if log.ConsumeTransactionID != mergedTx.ID {
			t.Fatalf("consume log should point at consolidated transaction")
		}
		if !log.Amount.IsPositive() {
			t.Fatalf("consume log must keep the pre-merge balance, got %s", log.Amount)
		}
		logged = logged.Add(log.Amount)
	}
	if !logged.Equal(mergedTx.Balance) {
		t.Fatalf("consume log total: got=%s want=%s", logged, mergedTx.Balance)
	}

	ops := f.audit.Operations()
	if len(ops) != 1 {
		t.Fatalf("operations: got=%d want=1", len(ops))
	}
	op := ops[0]
	if op.Status != merge.StatusSuccess {
		t.Fatalf("operation status: got=%s want=%s", op.Status, merge.StatusSuccess)
	}
	if op.RecordsBefore != 3 || op.RecordsAfter != 1 || op.MergedRecords != 3 {
		t.Fatalf("operation counters: before=%d after=%d merged=%d", op.RecordsBefore, op.RecordsAfter, op.MergedRecords)
	}

	snapshot, err := f.audit.FindLatestStatisticsByAccount(ctx, f.account.ID)
	if err != nil {
		t.Fatalf("latest statistics: %v", err)
	}
	if snapshot == nil {
		t.Fatalf("statistics snapshot missing")
	}
	if snapshot.TotalSmallRecords != 3 || snapshot.MergeableRecords != 3 {
		t.Fatalf("snapshot counters: total=%d mergeable=%d", snapshot.TotalSmallRecords, snapshot.MergeableRecords)
	}
}

func TestMergeSmallAmountsSingleRecordNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNoExpiry(t, "2.0")

	merged, err := f.service.MergeSmallAmounts(ctx, f.account, decimal.NewFromInt(5), DefaultBatchSize, credit.StrategyMonth, false)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged != 0 {
		t.Fatalf("merged: got=%d want=0", merged)
	}
	if txs := f.store.Transactions(f.account.ID); len(txs) != 1 {
		t.Fatalf("transactions: got=%d want=1", len(txs))
	}
	if logs := f.store.ConsumeLogs(); len(logs) != 0 {
		t.Fatalf("consume logs: got=%d want=0", len(logs))
	}
	ops := f.audit.Operations()
	if len(ops) != 1 || ops[0].Status != merge.StatusSuccess {
		t.Fatalf("single-record run should still record a successful operation")
	}
}

func TestMergeSmallAmountsDryRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	expiry := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		f.seedNoExpiry(t, "1.0")
		f.seedExpiring(t, "0.5", expiry)
	}

	merged, err := f.service.MergeSmallAmounts(ctx, f.account, decimal.NewFromInt(5), DefaultBatchSize, credit.StrategyMonth, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if merged != 0 {
		t.Fatalf("dry run merged: got=%d want=0", merged)
	}
	transactions := f.store.Transactions(f.account.ID)
	if len(transactions) != 10 {
		t.Fatalf("dry run must not create records: got=%d want=10", len(transactions))
	}
	for _, tx := range transactions {
		if tx.Balance.IsZero() {
			t.Fatalf("dry run must not zero balances")
		}
	}
	if logs := f.store.ConsumeLogs(); len(logs) != 0 {
		t.Fatalf("dry run consume logs: got=%d want=0", len(logs))
	}

	ops := f.audit.Operations()
	if len(ops) != 1 {
		t.Fatalf("operations: got=%d want=1", len(ops))
	}
	op := ops[0]
	if !op.IsDryRun || op.Status != merge.StatusSuccess {
		t.Fatalf("dry run operation: dry=%t status=%s", op.IsDryRun, op.Status)
	}
	if op.RecordsBefore != op.RecordsAfter {
		t.Fatalf("dry run after must equal before: before=%d after=%d", op.RecordsBefore, op.RecordsAfter)
	}
	if op.MergedRecords != 0 {
		t.Fatalf("dry run merged records: got=%d want=0", op.MergedRecords)
	}
}

func TestMergeSmallAmountsExpiryWindows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	octEarly := time.Date(2023, 10, 5, 0, 0, 0, 0, time.UTC)
	octLate := time.Date(2023, 10, 25, 0, 0, 0, 0, time.UTC)
	november := time.Date(2023, 11, 3, 0, 0, 0, 0, time.UTC)
	f.seedExpiring(t, "1.0", octLate)
	f.seedExpiring(t, "2.0", octEarly)
	f.seedExpiring(t, "1.5", november)

	merged, err := f.service.MergeSmallAmounts(ctx, f.account, decimal.NewFromInt(5), DefaultBatchSize, credit.StrategyMonth, false)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged != 2 {
		t.Fatalf("merged: got=%d want=2", merged)
	}

	var mergedTx *credit.Transaction
	for _, tx := range f.store.Transactions(f.account.ID) {
		if tx.Balance.Equal(decimal.RequireFromString("3.0")) {
			mergedTx = tx
		}
	}
	if mergedTx == nil {
		t.Fatalf("october consolidated transaction missing")
	}
	if mergedTx.ExpireTime == nil || !mergedTx.ExpireTime.Equal(octEarly) {
		t.Fatalf("consolidated expiry must be the window's earliest: got=%v want=%s", mergedTx.ExpireTime, octEarly)
	}

	// The lone November record stays untouched.
	novemberIntact := false
	for _, tx := range f.store.Transactions(f.account.ID) {
		if tx.ExpireTime != nil && tx.ExpireTime.Equal(november) && tx.Balance.Equal(decimal.RequireFromString("1.5")) {
			novemberIntact = true
		}
	}
	if !novemberIntact {
		t.Fatalf("single-record window must not be merged")
	}
}

func TestMergeSmallAmountsDayWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	morning := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	evening := time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)
	f.seedExpiring(t, "1.0", evening)
	f.seedExpiring(t, "2.0", morning)

	merged, err := f.service.MergeSmallAmounts(ctx, f.account, decimal.NewFromInt(5), DefaultBatchSize, credit.StrategyDay, false)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged != 2 {
		t.Fatalf("merged: got=%d want=2", merged)
	}

	var mergedTx *credit.Transaction
	for _, tx := range f.store.Transactions(f.account.ID) {
		if tx.Balance.Equal(decimal.RequireFromString("3.0")) {
			mergedTx = tx
		}
	}
	if mergedTx == nil {
		t.Fatalf("consolidated transaction missing")
	}
	if mergedTx.ExpireTime == nil || !mergedTx.ExpireTime.Equal(morning) {
		t.Fatalf("consolidated expiry must be the day's earliest: got=%v want=%s", mergedTx.ExpireTime, morning)
	}
	if !strings.Contains(mergedTx.EventNo, "_2024-01-15_") {
		t.Fatalf("event number must carry the day window key: got=%s", mergedTx.EventNo)
	}

	logs := f.store.ConsumeLogs()
	if len(logs) != 2 {
		t.Fatalf("consume logs: got=%d want=2", len(logs))
	}
	for _, log := range logs {
		if log.ConsumeTransactionID != mergedTx.ID {
			t.Fatalf("consume log should point at consolidated transaction")
		}
	}
}

// steppingClock returns the base time once, then a fixed later instant, so
// elapsed time computed through the clock is deterministic.
type steppingClock struct {
	base    time.Time
	stepped bool
}

func (c *steppingClock) Now() time.Time {
	if !c.stepped {
		c.stepped = true
		return c.base
	}
	return c.base.Add(250 * time.Millisecond)
}

func TestMergeSmallAmountsExecutionTimeFromClock(t *testing.T) {
	ctx := context.Background()
	store := creditmemory.NewStore()
	account := &credit.Account{ID: "acct-1", Name: "primary", Currency: "CNY"}
	store.PutAccount(account)
	for _, balance := range []string{"1.0", "2.0"} {
		amount := decimal.RequireFromString(balance)
		store.PutTransaction(&credit.Transaction{
			AccountID: account.ID,
			Amount:    amount,
			Balance:   amount,
			Currency:  account.Currency,
		})
	}

	audit := mergememory.NewAuditStore()
	log := logger.NewWithWriter(io.Discard)
	clock := &steppingClock{base: time.Date(2023, 10, 20, 12, 0, 0, 0, time.UTC)}
	stats := NewStatsService(store)
	recorder := NewOperationRecorder(audit, audit.Statistics(), log, clock)
	executor := NewMergeExecutor(log, clock)
	service, err := NewMergeService(creditmemory.NewUnitOfWork(store), store, stats, recorder, executor, log, clock)
	if err != nil {
		t.Fatalf("new merge service: %v", err)
	}

	if _, err := service.MergeSmallAmounts(ctx, account, decimal.NewFromInt(5), DefaultBatchSize, credit.StrategyMonth, false); err != nil {
		t.Fatalf("merge: %v", err)
	}

	ops := audit.Operations()
	if len(ops) != 1 {
		t.Fatalf("operations: got=%d want=1", len(ops))
	}
	if got, want := ops[0].ExecutionTime, 250*time.Millisecond; got != want {
		t.Fatalf("execution time must come from the injected clock: got=%s want=%s", got, want)
	}
}

// failingUow passes Begin through but makes the transaction-bound store fail
// on Create, after reads succeed.
type failingUow struct {
	inner credit.UnitOfWork
}

func (u failingUow) Begin(ctx context.Context) (credit.UnitTx, error) {
	tx, err := u.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failingTx{UnitTx: tx}, nil
}

type failingTx struct {
	credit.UnitTx
}

func (t failingTx) Transactions() credit.TransactionStore {
	return failingStore{TransactionStore: t.UnitTx.Transactions()}
}

type failingStore struct {
	credit.TransactionStore
}

func (s failingStore) Create(ctx context.Context, tx *credit.Transaction) error {
	return errors.New("storage write refused")
}

func TestMergeSmallAmountsRollbackOnFailure(t *testing.T) {
	ctx := context.Background()
	store := creditmemory.NewStore()
	account := &credit.Account{ID: "acct-1", Name: "primary", Currency: "CNY"}
	store.PutAccount(account)
	uow := failingUow{inner: creditmemory.NewUnitOfWork(store)}

	f := &fixture{store: store, account: account}
	audit := mergememory.NewAuditStore()
	log := logger.NewWithWriter(io.Discard)
	clock := fixedClock{now: time.Date(2023, 10, 20, 12, 0, 0, 0, time.UTC)}
	recorder := NewOperationRecorder(audit, audit.Statistics(), log, clock)
	service, err := NewMergeService(uow, store, NewStatsService(store), recorder, NewMergeExecutor(log, clock), log, clock)
	if err != nil {
		t.Fatalf("new merge service: %v", err)
	}
	f.service = service
	f.audit = audit
	f.seedNoExpiry(t, "1.0", "2.0")

	_, err = f.service.MergeSmallAmounts(ctx, f.account, decimal.NewFromInt(5), DefaultBatchSize, credit.StrategyMonth, false)
	if err == nil {
		t.Fatalf("expected merge failure")
	}

	for _, tx := range store.Transactions(account.ID) {
		if tx.Balance.IsZero() {
			t.Fatalf("rollback must restore source balances")
		}
	}
	if txs := store.Transactions(account.ID); len(txs) != 2 {
		t.Fatalf("rollback transactions: got=%d want=2", len(txs))
	}

	ops := audit.Operations()
	if len(ops) != 1 {
		t.Fatalf("operations: got=%d want=1", len(ops))
	}
	if ops[0].Status != merge.StatusFailed {
		t.Fatalf("operation status: got=%s want=%s", ops[0].Status, merge.StatusFailed)
	}
	if ops[0].ResultMessage == "" {
		t.Fatalf("failed operation should carry the error message")
	}
}

func TestMergeSmallAmountsNilAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.MergeSmallAmounts(context.Background(), nil, decimal.NewFromInt(5), DefaultBatchSize, credit.StrategyMonth, false)
	if !errors.Is(err, credit.ErrNilAccount) {
		t.Fatalf("expected ErrNilAccount, got %v", err)
	}
}

func TestDetailedSmallAmountStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	expiry := time.Date(2023, 10, 10, 0, 0, 0, 0, time.UTC)
	f.seedNoExpiry(t, "1.0", "2.0")
	f.seedExpiring(t, "1.5", expiry)

	stats, err := f.service.GetDetailedSmallAmountStats(ctx, f.account, decimal.NewFromInt(5), credit.StrategyMonth)
	if err != nil {
		t.Fatalf("detailed stats: %v", err)
	}
	if stats.Count != 3 {
		t.Fatalf("count: got=%d want=3", stats.Count)
	}
	if !stats.Total.Equal(decimal.RequireFromString("4.5")) {
		t.Fatalf("total: got=%s want=4.5", stats.Total)
	}
	noExpiry, ok := stats.GroupStats[credit.WindowKeyNoExpiry]
	if !ok || noExpiry.Count != 2 {
		t.Fatalf("no-expiry group: %+v", noExpiry)
	}
	monthGroup, ok := stats.GroupStats["2023-10"]
	if !ok || monthGroup.Count != 1 {
		t.Fatalf("month group: %+v", monthGroup)
	}
	if monthGroup.EarliestExpiry == nil || !monthGroup.EarliestExpiry.Equal(expiry) {
		t.Fatalf("month group expiry: got=%v want=%s", monthGroup.EarliestExpiry, expiry)
	}

	// Stats queries must not change the ledger.
	again, err := f.service.GetDetailedSmallAmountStats(ctx, f.account, decimal.NewFromInt(5), credit.StrategyMonth)
	if err != nil {
		t.Fatalf("detailed stats again: %v", err)
	}
	if again.Count != stats.Count || !again.Total.Equal(stats.Total) {
		t.Fatalf("repeated stats should be identical")
	}
}

func TestSmallAmountStatsBasic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedNoExpiry(t, "1.0", "9.0")

	stats, err := f.service.GetSmallAmountStats(ctx, f.account, decimal.NewFromInt(5))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 1 {
		t.Fatalf("count: got=%d want=1", stats.Count)
	}
	if !stats.Total.Equal(decimal.RequireFromString("1.0")) {
		t.Fatalf("total: got=%s want=1.0", stats.Total)
	}
	if len(stats.GroupStats) != 0 {
		t.Fatalf("basic stats should carry no groups")
	}
}
