package memory

import (
	"context"

	credit "credit-merge/internal/credit/domain"
)

// UnitOfWork gives the in-memory store transactional semantics by taking a
// snapshot on Begin and restoring it on Rollback. Reads inside the unit see
// live writes, matching how a database transaction reads its own changes.
type UnitOfWork struct {
	store *Store
}

// NewUnitOfWork wraps a store.
func NewUnitOfWork(store *Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

// Begin snapshots the store state.
func (u *UnitOfWork) Begin(ctx context.Context) (credit.UnitTx, error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	snapshot := make(map[string]credit.Transaction, len(u.store.transactions))
	for id, tx := range u.store.transactions {
		snapshot[id] = *tx
	}
	return &memoryTx{
		store:       u.store,
		snapshot:    snapshot,
		logsLen:     len(u.store.consumeLogs),
		snapshotSeq: u.store.nextSeq,
	}, nil
}

type memoryTx struct {
	store       *Store
	snapshot    map[string]credit.Transaction
	logsLen     int
	snapshotSeq int
}

func (t *memoryTx) Transactions() credit.TransactionStore { return t.store }

func (t *memoryTx) ConsumeLogs() credit.ConsumeLogStore { return consumeLogStore{t.store} }

func (t *memoryTx) Commit() error { return nil }

// Rollback restores the snapshot taken at Begin.
func (t *memoryTx) Rollback() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	restored := make(map[string]*credit.Transaction, len(t.snapshot))
	for id, tx := range t.snapshot {
		copied := tx
		restored[id] = &copied
	}
	t.store.transactions = restored
	t.store.consumeLogs = t.store.consumeLogs[:t.logsLen]
	t.store.nextSeq = t.snapshotSeq
	return nil
}

// consumeLogStore routes consume log writes to the store.
type consumeLogStore struct {
	store *Store
}

func (c consumeLogStore) Create(ctx context.Context, log *credit.ConsumeLog) error {
	return c.store.CreateConsumeLog(ctx, log)
}
