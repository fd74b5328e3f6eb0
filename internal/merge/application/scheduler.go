package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	credit "credit-merge/internal/credit/domain"
	"credit-merge/internal/mergeconfig"
)

// Scheduler runs the merge batch over every account once per day at a
// configured UTC wall time.
type Scheduler struct {
	merger   *MergeService
	accounts credit.AccountStore
	cfg      mergeconfig.Config
	logger   zerolog.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(merger *MergeService, accounts credit.AccountStore, cfg mergeconfig.Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{merger: merger, accounts: accounts, cfg: cfg, logger: logger}
}

// Start begins the scheduler loop. It returns when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.merger == nil || !s.cfg.Schedule.Enabled {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.RunOnce(ctx)
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.cfg.Schedule.DailyAt)
	if err != nil {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

// RunOnce merges every account, continuing past per-account failures. Each
// failure is already recorded in the audit trail by the orchestrator.
func (s *Scheduler) RunOnce(ctx context.Context) {
	accounts, err := s.accounts.List(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("merge schedule: account listing failed")
		return
	}

	strategy, err := credit.ParseStrategy(s.cfg.AutoMerge.Strategy)
	if err != nil {
		strategy = DefaultStrategy
	}
	floor := s.cfg.AutoMerge.MergeFloorDecimal()

	for _, account := range accounts {
		if account == nil {
			continue
		}
		if _, err := s.merger.MergeSmallAmounts(ctx, account, floor, DefaultBatchSize, strategy, false); err != nil {
			s.logger.Error().
				Str("account_id", account.ID).
				Err(err).
				Msg("merge schedule: account merge failed")
		}
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
