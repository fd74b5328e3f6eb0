package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
)

// MergeExecutor replaces groups of small entries with one consolidated entry
// each, inside the storage transaction supplied by the orchestrator.
type MergeExecutor struct {
	logger zerolog.Logger
	clock  Clock
}

// NewMergeExecutor constructs an executor.
func NewMergeExecutor(logger zerolog.Logger, clock Clock) *MergeExecutor {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MergeExecutor{logger: logger, clock: clock}
}

// MergeNoExpiryRecords merges all eligible never-expiring entries as one
// group. Returns the number of source rows consumed, 0 when fewer than two
// are eligible.
func (e *MergeExecutor) MergeNoExpiryRecords(ctx context.Context, tx credit.UnitTx, account *credit.Account, minAmount decimal.Decimal) (int, error) {
	records, err := tx.Transactions().FindMergeableNoExpiry(ctx, account.ID, minAmount)
	if err != nil {
		return 0, err
	}
	e.logger.Debug().
		Str("account_id", account.ID).
		Int("count", len(records)).
		Msg("found small entries without expiry")

	if len(records) <= 1 {
		return 0, nil
	}
	merged, err := e.MergeGroup(ctx, tx, records, account, credit.WindowKeyNoExpiry, nil)
	if err != nil {
		return 0, err
	}
	e.logger.Info().
		Str("account_id", account.ID).
		Int("count", merged).
		Msg("merged entries without expiry")
	return merged, nil
}

// MergeExpiryRecords groups eligible expiring entries by the strategy's
// window key and merges each group holding more than one record. Returns the
// total number of source rows consumed.
func (e *MergeExecutor) MergeExpiryRecords(ctx context.Context, tx credit.UnitTx, account *credit.Account, minAmount decimal.Decimal, strategy credit.TimeWindowStrategy) (int, error) {
	records, err := tx.Transactions().FindMergeableWithExpiry(ctx, account.ID, minAmount)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	grouped := GroupByTimeWindow(records, strategy)

	// Stable iteration so a failing run always fails at the same group.
	keys := make([]string, 0, len(grouped))
	for key := range grouped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	total := 0
	for _, key := range keys {
		group := grouped[key]
		if !group.Mergeable() {
			continue
		}
		expiry := group.EarliestExpiry
		merged, err := e.MergeGroup(ctx, tx, group.Records, account, group.WindowKey, &expiry)
		if err != nil {
			return 0, err
		}
		total += merged
		e.logger.Debug().
			Str("account_id", account.ID).
			Str("window", group.WindowKey).
			Int("count", merged).
			Msg("merged window group")
	}
	return total, nil
}

// MergeGroup consolidates one group: creates a single new transaction
// carrying the summed balance and the given expiry, zeroes every source row
// and writes one consume log per source. Returns the number of source rows
// consumed; a group of one is a no-op.
func (e *MergeExecutor) MergeGroup(ctx context.Context, tx credit.UnitTx, records []*credit.Transaction, account *credit.Account, windowKey string, expiry *time.Time) (int, error) {
	if len(records) <= 1 {
		return 0, nil
	}

	total := decimal.Zero
	recordIDs := make([]string, 0, len(records))
	for _, record := range records {
		total = total.Add(record.Balance)
		recordIDs = append(recordIDs, record.ID)
	}

	now := e.clock.Now()
	mergedRecord := &credit.Transaction{
		AccountID:  account.ID,
		EventNo:    mergeEventNo(account.ID, windowKey),
		Amount:     total,
		Balance:    total,
		Currency:   account.Currency,
		ExpireTime: expiry,
		Remark:     fmt.Sprintf("merged %d small credit entries (%s)", len(records), windowKey),
		Context: map[string]any{
			"merged_records": recordIDs,
			"merge_strategy": windowKey,
			"merge_time":     now.Format("2006-01-02 15:04:05"),
		},
		CreatedAt: now,
	}
	if err := tx.Transactions().Create(ctx, mergedRecord); err != nil {
		return 0, err
	}

	for _, record := range records {
		// Balance captured before zeroing; the consume log keeps the
		// pre-merge value.
		consumed := record.Balance
		if err := tx.Transactions().ZeroBalance(ctx, record.ID); err != nil {
			return 0, err
		}
		record.Balance = decimal.Zero
		log := &credit.ConsumeLog{
			CostTransactionID:    record.ID,
			ConsumeTransactionID: mergedRecord.ID,
			Amount:               consumed,
			CreatedAt:            now,
		}
		if err := tx.ConsumeLogs().Create(ctx, log); err != nil {
			return 0, err
		}
	}

	return len(records), nil
}

// mergeEventNo builds a collision-free event number for a consolidated row.
func mergeEventNo(accountID, windowKey string) string {
	return fmt.Sprintf("MERGE_%s_%s_%s", accountID, windowKey, uuid.NewString())
}
