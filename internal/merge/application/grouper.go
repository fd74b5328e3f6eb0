package application

import (
	credit "credit-merge/internal/credit/domain"
	merge "credit-merge/internal/merge/domain"
)

// GroupByTimeWindow partitions expiring records into window groups keyed by
// the strategy's window key. Records without an expiry are skipped; the
// no-expiry path handles them. Deterministic given stable input ordering.
func GroupByTimeWindow(records []*credit.Transaction, strategy credit.TimeWindowStrategy) map[string]*merge.WindowGroup {
	grouped := make(map[string]*merge.WindowGroup)
	for _, record := range records {
		if record == nil || record.ExpireTime == nil {
			continue
		}
		expiry := *record.ExpireTime
		key := credit.WindowKey(expiry, strategy)
		group, ok := grouped[key]
		if !ok {
			group = &merge.WindowGroup{WindowKey: key}
			grouped[key] = group
		}
		group.Add(record, expiry)
	}
	return grouped
}
