package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
	creditpg "credit-merge/internal/credit/infrastructure/postgres"
	"credit-merge/internal/logger"
	"credit-merge/internal/merge/application"
	mergepg "credit-merge/internal/merge/infrastructure/postgres"
)

type config struct {
	dbURL     string
	accountID string
	minAmount float64
	batchSize int
	strategy  string
	dryRun    bool
}

type accountResult struct {
	accountID string
	merged    int
	err       error
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	strategy, err := credit.ParseStrategy(cfg.strategy)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	minAmount := decimal.NewFromFloat(cfg.minAmount)
	if !minAmount.IsPositive() {
		fmt.Fprintln(os.Stderr, "-min-amount must be positive")
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	log := logger.New()
	ctx := context.Background()

	accountRepo := creditpg.NewAccountRepository(db)
	transactionRepo := creditpg.NewTransactionRepository(db)
	uow := creditpg.NewUnitOfWork(db)
	operationRepo := mergepg.NewOperationRepository(db)
	statisticsRepo := mergepg.NewStatisticsRepository(db)

	clock := application.SystemClock{}
	statsService := application.NewStatsService(transactionRepo)
	recorder := application.NewOperationRecorder(operationRepo, statisticsRepo, logger.Named(log, "recorder"), clock)
	executor := application.NewMergeExecutor(logger.Named(log, "executor"), clock)
	mergeService, err := application.NewMergeService(uow, transactionRepo, statsService, recorder, executor, logger.Named(log, "merge"), clock)
	if err != nil {
		fmt.Fprintln(os.Stderr, "merge service:", err)
		os.Exit(2)
	}

	var accounts []*credit.Account
	if cfg.accountID != "" {
		account, err := accountRepo.GetByID(ctx, cfg.accountID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load account:", err)
			os.Exit(2)
		}
		accounts = []*credit.Account{account}
	} else {
		accounts, err = accountRepo.List(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list accounts:", err)
			os.Exit(2)
		}
	}
	if len(accounts) == 0 {
		fmt.Println("no accounts to merge")
		return
	}

	results := make([]accountResult, 0, len(accounts))
	failed := 0
	for _, account := range accounts {
		merged, err := mergeService.MergeSmallAmounts(ctx, account, minAmount, cfg.batchSize, strategy, cfg.dryRun)
		if err != nil {
			failed++
		}
		results = append(results, accountResult{accountID: account.ID, merged: merged, err: err})
	}

	printSummary(results, cfg.dryRun)
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d accounts failed\n", failed, len(accounts))
		os.Exit(1)
	}
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dbURL, "db", getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")), "Postgres DSN")
	flag.StringVar(&cfg.accountID, "account", "", "account id (default: all accounts)")
	flag.Float64Var(&cfg.minAmount, "min-amount", 5.0, "merge entries with balance at or under this amount")
	flag.IntVar(&cfg.batchSize, "batch-size", application.DefaultBatchSize, "batch size per run")
	flag.StringVar(&cfg.strategy, "strategy", string(application.DefaultStrategy), "time window strategy: "+strategyNames())
	flag.BoolVar(&cfg.dryRun, "dry-run", false, "compute and record without writing merges")
	flag.Parse()

	if cfg.dbURL == "" {
		return cfg, errors.New("missing -db or DATABASE_URL/PG_DSN")
	}
	if cfg.batchSize <= 0 {
		return cfg, errors.New("-batch-size must be positive")
	}
	return cfg, nil
}

func strategyNames() string {
	strategies := credit.Strategies()
	names := make([]string, 0, len(strategies))
	for _, strategy := range strategies {
		names = append(names, string(strategy))
	}
	return strings.Join(names, ", ")
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func printSummary(results []accountResult, dryRun bool) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ACCOUNT\tMERGED\tSTATUS")
	totalMerged := 0
	for _, result := range results {
		status := "ok"
		if result.err != nil {
			status = "failed: " + result.err.Error()
		} else if dryRun {
			status = "dry run"
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\n", result.accountID, result.merged, status)
		totalMerged += result.merged
	}
	_ = writer.Flush()
	fmt.Printf("merged %d records across %d accounts\n", totalMerged, len(results))
}
