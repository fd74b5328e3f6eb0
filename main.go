package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"credit-merge/internal/auth"
	creditpg "credit-merge/internal/credit/infrastructure/postgres"
	"credit-merge/internal/logger"
	"credit-merge/internal/merge/application"
	mergepg "credit-merge/internal/merge/infrastructure/postgres"
	mergehttp "credit-merge/internal/merge/interfaces/http"
	"credit-merge/internal/mergeconfig"
	"credit-merge/internal/observability/metrics"
)

func main() {
	cfg := loadConfig()
	log := logger.New()

	mergeCfg, err := mergeconfig.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("merge config error")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db open error")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db ping error")
	}

	metrics.Init(db, logger.Named(log, "metrics"))

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
		log.Fatal().Err(err).Msg("merge service error")
	}

	handler, err := mergehttp.NewHandler(mergeService, accountRepo, operationRepo, statisticsRepo)
	if err != nil {
		log.Fatal().Err(err).Msg("merge handler error")
	}

	scheduler := application.NewScheduler(mergeService, accountRepo, mergeCfg, logger.Named(log, "scheduler"))
	go scheduler.Start(context.Background())

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	router.Use(loggingMiddleware(logger.Named(log, "http")))
	router.Use(authMiddleware.Wrap)

	handler.Routes(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
	log.Fatal().Err(server.ListenAndServe()).Msg("http server stopped")
}

type config struct {
	DatabaseURL string
	HTTPAddr    string
	JWTSecret   string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:   getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	if cfg.DatabaseURL == "" {
		log := logger.New()
		log.Fatal().Msg("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log := logger.New()
		log.Fatal().Msg("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(resp, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", resp.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
