package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	metricPrefix = "credit_merge_"

	resultSuccess = "success"
	resultError   = "error"

	runModeReal   = "real"
	runModeDryRun = "dry_run"
)

var (
	registerOnce sync.Once

	mergeRunsTotal  *prometheus.CounterVec
	mergeRunLatency *prometheus.HistogramVec

	mergedRecordsTotal prometheus.Counter

	statsSnapshotsTotal prometheus.Counter

	autoMergeTriggersTotal *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger zerolog.Logger) {
	registerOnce.Do(func() {
		mergeRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "runs_total",
				Help: "Total merge runs by result and mode",
			},
			[]string{"result", "mode"},
		)
		mergeRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "run_latency_seconds",
				Help:    "Merge run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result", "mode"},
		)

		mergedRecordsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "merged_records_total",
				Help: "Total source rows consumed by merges",
			},
		)

		statsSnapshotsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "statistics_snapshots_total",
				Help: "Total persisted statistics snapshots",
			},
		)

		autoMergeTriggersTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "auto_merge_triggers_total",
				Help: "Auto-merge trigger decisions by outcome",
			},
			[]string{"outcome"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total operation export builds by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Operation export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			mergeRunsTotal,
			mergeRunLatency,
			mergedRecordsTotal,
			statsSnapshotsTotal,
			autoMergeTriggersTotal,
			exportTotal,
			exportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveMergeRun records a merge run result and latency.
func ObserveMergeRun(result string, dryRun bool, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	mode := runModeReal
	if dryRun {
		mode = runModeDryRun
	}
	if mergeRunsTotal != nil {
		mergeRunsTotal.WithLabelValues(result, mode).Inc()
	}
	if mergeRunLatency != nil {
		mergeRunLatency.WithLabelValues(result, mode).Observe(duration.Seconds())
	}
}

// AddMergedRecords counts consumed source rows.
func AddMergedRecords(count int) {
	if count <= 0 {
		return
	}
	if mergedRecordsTotal != nil {
		mergedRecordsTotal.Add(float64(count))
	}
}

// IncStatsSnapshot counts one persisted statistics snapshot.
func IncStatsSnapshot() {
	if statsSnapshotsTotal != nil {
		statsSnapshotsTotal.Inc()
	}
}

// IncAutoMergeTrigger counts an auto-merge decision outcome.
func IncAutoMergeTrigger(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if autoMergeTriggersTotal != nil {
		autoMergeTriggersTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveExport records an export build by format and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
