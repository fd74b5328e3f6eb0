package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
)

// Store is an in-memory implementation of the credit stores, used in tests
// and for local runs without a database.
type Store struct {
	mu           sync.Mutex
	accounts     map[string]*credit.Account
	transactions map[string]*credit.Transaction
	consumeLogs  []*credit.ConsumeLog
	nextSeq      int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[string]*credit.Account),
		transactions: make(map[string]*credit.Transaction),
	}
}

// PutAccount registers an account.
func (s *Store) PutAccount(account *credit.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
}

// PutTransaction registers a transaction, assigning an id when missing.
func (s *Store) PutTransaction(tx *credit.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putTransactionLocked(tx)
}

func (s *Store) putTransactionLocked(tx *credit.Transaction) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		s.nextSeq++
		tx.CreatedAt = time.Unix(int64(s.nextSeq), 0).UTC()
	}
	s.transactions[tx.ID] = tx
}

// GetByID implements credit.AccountStore.
func (s *Store) GetByID(ctx context.Context, id string) (*credit.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, credit.ErrAccountNotFound)
	}
	return account, nil
}

// List implements credit.AccountStore.
func (s *Store) List(ctx context.Context) ([]*credit.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := make([]*credit.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

// FindMergeableNoExpiry implements credit.TransactionStore.
func (s *Store) FindMergeableNoExpiry(ctx context.Context, accountID string, ceiling decimal.Decimal) ([]*credit.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*credit.Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID && tx.ExpireTime == nil && tx.IsSmallUnspent(ceiling) {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// FindMergeableWithExpiry implements credit.TransactionStore.
func (s *Store) FindMergeableWithExpiry(ctx context.Context, accountID string, ceiling decimal.Decimal) ([]*credit.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*credit.Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID && tx.ExpireTime != nil && tx.IsSmallUnspent(ceiling) {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExpireTime.Before(*result[j].ExpireTime) })
	return result, nil
}

// AggregateSmall implements credit.TransactionStore.
func (s *Store) AggregateSmall(ctx context.Context, accountID string, threshold decimal.Decimal) (int, decimal.Decimal, error) {
	return s.aggregate(accountID, threshold, false)
}

// AggregateSmallNoExpiry implements credit.TransactionStore.
func (s *Store) AggregateSmallNoExpiry(ctx context.Context, accountID string, threshold decimal.Decimal) (int, decimal.Decimal, error) {
	return s.aggregate(accountID, threshold, true)
}

func (s *Store) aggregate(accountID string, threshold decimal.Decimal, noExpiryOnly bool) (int, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	total := decimal.Zero
	for _, tx := range s.transactions {
		if tx.AccountID != accountID {
			continue
		}
		if noExpiryOnly && tx.ExpireTime != nil {
			continue
		}
		if tx.Balance.IsPositive() && tx.Balance.LessThanOrEqual(threshold) {
			count++
			total = total.Add(tx.Balance)
		}
	}
	return count, total, nil
}

// ListSmallWithExpiry implements credit.TransactionStore.
func (s *Store) ListSmallWithExpiry(ctx context.Context, accountID string, threshold decimal.Decimal) ([]*credit.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*credit.Transaction
	for _, tx := range s.transactions {
		if tx.AccountID != accountID || tx.ExpireTime == nil {
			continue
		}
		if tx.Balance.IsPositive() && tx.Balance.LessThanOrEqual(threshold) {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExpireTime.Before(*result[j].ExpireTime) })
	return result, nil
}

// ConsumptionPreview implements credit.TransactionStore.
func (s *Store) ConsumptionPreview(ctx context.Context, accountID string, costAmount decimal.Decimal) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var positive []*credit.Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID && tx.Balance.IsPositive() {
			positive = append(positive, tx)
		}
	}
	sort.Slice(positive, func(i, j int) bool {
		a, b := positive[i], positive[j]
		switch {
		case a.ExpireTime == nil && b.ExpireTime == nil:
			return a.CreatedAt.Before(b.CreatedAt)
		case a.ExpireTime == nil:
			return false
		case b.ExpireTime == nil:
			return true
		case a.ExpireTime.Equal(*b.ExpireTime):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ExpireTime.Before(*b.ExpireTime)
		}
	})
	count := 0
	covered := decimal.Zero
	for _, tx := range positive {
		count++
		covered = covered.Add(tx.Balance)
		if covered.GreaterThanOrEqual(costAmount) {
			break
		}
	}
	return count, nil
}

// Create implements credit.TransactionStore.
func (s *Store) Create(ctx context.Context, tx *credit.Transaction) error {
	if tx == nil {
		return errors.New("memory store: nil transaction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putTransactionLocked(tx)
	return nil
}

// ZeroBalance implements credit.TransactionStore.
func (s *Store) ZeroBalance(ctx context.Context, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[transactionID]
	if !ok {
		return fmt.Errorf("memory store: transaction %s not found", transactionID)
	}
	tx.Balance = decimal.Zero
	return nil
}

// CreateConsumeLog records a consume log entry.
func (s *Store) CreateConsumeLog(ctx context.Context, log *credit.ConsumeLog) error {
	if log == nil {
		return errors.New("memory store: nil consume log")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	s.consumeLogs = append(s.consumeLogs, log)
	return nil
}

// Transaction returns a stored transaction by id.
func (s *Store) Transaction(id string) *credit.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions[id]
}

// Transactions returns all stored transactions for an account.
func (s *Store) Transactions(accountID string) []*credit.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*credit.Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID {
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result
}

// ConsumeLogs returns all recorded consume logs.
func (s *Store) ConsumeLogs() []*credit.ConsumeLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := make([]*credit.ConsumeLog, len(s.consumeLogs))
	copy(logs, s.consumeLogs)
	return logs
}
