package merge

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
)

// WindowGroupStat is the per-window slice of a statistics object.
type WindowGroupStat struct {
	Count          int             `json:"count"`
	Total          decimal.Decimal `json:"total"`
	EarliestExpiry *time.Time      `json:"earliest_expiry,omitempty"`
}

// SmallAmountStats describes the small-balance population of one account at
// a given threshold. GroupStats is keyed by window key ("no_expiry" or a
// time-window key) and is empty on a basic, ungrouped query.
type SmallAmountStats struct {
	AccountID  string
	Count      int
	Total      decimal.Decimal
	Threshold  decimal.Decimal
	Strategy   credit.TimeWindowStrategy
	GroupStats map[string]WindowGroupStat
}

// NewSmallAmountStats builds an ungrouped statistics object.
func NewSmallAmountStats(accountID string, count int, total, threshold decimal.Decimal) *SmallAmountStats {
	return &SmallAmountStats{
		AccountID: accountID,
		Count:     count,
		Total:     total,
		Threshold: threshold,
	}
}

// AddGroupStat records the statistics of one window.
func (s *SmallAmountStats) AddGroupStat(windowKey string, count int, total decimal.Decimal, earliestExpiry *time.Time) {
	if s.GroupStats == nil {
		s.GroupStats = make(map[string]WindowGroupStat)
	}
	s.GroupStats[windowKey] = WindowGroupStat{
		Count:          count,
		Total:          total,
		EarliestExpiry: earliestExpiry,
	}
}

// HasMergeableRecords reports whether merging could reduce anything at all.
func (s *SmallAmountStats) HasMergeableRecords() bool {
	return s.Count > 1
}

// PotentialRecordReduction is the number of rows a merge would eliminate.
// When window groups are known the grouped definition is canonical: each
// window with N > 1 records collapses N rows into one. An ungrouped stats
// object assumes everything merges into a single row.
func (s *SmallAmountStats) PotentialRecordReduction() int {
	if !s.HasMergeableRecords() {
		return 0
	}
	if len(s.GroupStats) == 0 {
		return s.Count - 1
	}
	reduction := 0
	for _, group := range s.GroupStats {
		if group.Count > 1 {
			reduction += group.Count - 1
		}
	}
	return reduction
}

// MergeEfficiency is the percentage of records a merge would eliminate.
func (s *SmallAmountStats) MergeEfficiency() float64 {
	if s.Count <= 1 {
		return 0
	}
	return float64(s.PotentialRecordReduction()) / float64(s.Count) * 100
}

// AverageAmount is the mean balance per small record.
func (s *SmallAmountStats) AverageAmount() decimal.Decimal {
	if s.Count == 0 {
		return decimal.Zero
	}
	return s.Total.Div(decimal.NewFromInt(int64(s.Count)))
}

// MarshalJSON serializes the stats with their derived metrics, matching the
// shape persisted in statistics snapshots.
func (s *SmallAmountStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"account_id":            s.AccountID,
		"count":                 s.Count,
		"total":                 s.Total,
		"threshold":             s.Threshold,
		"strategy":              string(s.Strategy),
		"average_amount":        s.AverageAmount(),
		"has_mergeable_records": s.HasMergeableRecords(),
		"potential_reduction":   s.PotentialRecordReduction(),
		"merge_efficiency":      s.MergeEfficiency(),
		"group_stats":           s.GroupStats,
	})
}
