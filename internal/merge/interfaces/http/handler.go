package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	credit "credit-merge/internal/credit/domain"
	"credit-merge/internal/merge/application"
	merge "credit-merge/internal/merge/domain"
	"credit-merge/internal/merge/interfaces"
	"credit-merge/internal/observability/metrics"
)

const timeLayout = time.RFC3339

// Handler serves the merge admin API.
type Handler struct {
	service    *application.MergeService
	accounts   credit.AccountStore
	operations merge.OperationStore
	statistics merge.StatisticsStore
}

// NewHandler constructs a Handler.
func NewHandler(service *application.MergeService, accounts credit.AccountStore, operations merge.OperationStore, statistics merge.StatisticsStore) (*Handler, error) {
	if service == nil {
		return nil, errors.New("merge handler: nil service")
	}
	if accounts == nil || operations == nil || statistics == nil {
		return nil, errors.New("merge handler: missing stores")
	}
	return &Handler{
		service:    service,
		accounts:   accounts,
		operations: operations,
		statistics: statistics,
	}, nil
}

// Routes mounts the handler under /api/v1/merge.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1/merge", func(r chi.Router) {
		r.Post("/run", h.handleRun)
		r.Get("/operations", h.handleOperations)
		r.Get("/operations/export", h.handleOperationsExport)
		r.Get("/operations/latest", h.handleLatestOperation)
		r.Get("/statistics", h.handleStatistics)
		r.Get("/stats", h.handleLiveStats)
		r.Get("/distribution", h.handleDistribution)
		r.Get("/summary", h.handleSummary)
	})
}

type runRequest struct {
	AccountID string `json:"account_id"`
	MinAmount string `json:"min_amount"`
	BatchSize int    `json:"batch_size"`
	Strategy  string `json:"strategy"`
	DryRun    bool   `json:"dry_run"`
}

type runResponse struct {
	AccountID     string `json:"account_id"`
	MergedRecords int    `json:"merged_records"`
	DryRun        bool   `json:"dry_run"`
	Strategy      string `json:"strategy"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.AccountID == "" {
		respondError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	minAmount := application.DefaultMinAmount
	if req.MinAmount != "" {
		parsed, err := decimal.NewFromString(req.MinAmount)
		if err != nil || !parsed.IsPositive() {
			respondError(w, http.StatusBadRequest, "min_amount must be a positive number")
			return
		}
		minAmount = parsed
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = application.DefaultBatchSize
	}
	strategy := application.DefaultStrategy
	if req.Strategy != "" {
		parsed, err := credit.ParseStrategy(req.Strategy)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		strategy = parsed
	}

	account, err := h.accounts.GetByID(r.Context(), req.AccountID)
	if err != nil {
		if errors.Is(err, credit.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "account not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	merged, err := h.service.MergeSmallAmounts(r.Context(), account, minAmount, batchSize, strategy, req.DryRun)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, runResponse{
		AccountID:     account.ID,
		MergedRecords: merged,
		DryRun:        req.DryRun,
		Strategy:      string(strategy),
	})
}

type operationResponse struct {
	ID                 int64          `json:"id"`
	AccountID          string         `json:"account_id"`
	OperationTime      time.Time      `json:"operation_time"`
	Strategy           string         `json:"strategy"`
	MinAmountThreshold string         `json:"min_amount_threshold"`
	BatchSize          int            `json:"batch_size"`
	IsDryRun           bool           `json:"is_dry_run"`
	RecordsBefore      int            `json:"records_before"`
	RecordsAfter       int            `json:"records_after"`
	MergedRecords      int            `json:"merged_records"`
	TotalAmount        string         `json:"total_amount"`
	Status             string         `json:"status"`
	ResultMessage      string         `json:"result_message,omitempty"`
	Context            map[string]any `json:"context,omitempty"`
	ExecutionTimeMs    int64          `json:"execution_time_ms"`
}

func toOperationResponse(op *merge.MergeOperation) operationResponse {
	return operationResponse{
		ID:                 op.ID,
		AccountID:          op.AccountID,
		OperationTime:      op.OperationTime,
		Strategy:           string(op.Strategy),
		MinAmountThreshold: op.MinAmountThreshold.String(),
		BatchSize:          op.BatchSize,
		IsDryRun:           op.IsDryRun,
		RecordsBefore:      op.RecordsBefore,
		RecordsAfter:       op.RecordsAfter,
		MergedRecords:      op.MergedRecords,
		TotalAmount:        op.TotalAmount.String(),
		Status:             string(op.Status),
		ResultMessage:      op.ResultMessage,
		Context:            op.Context,
		ExecutionTimeMs:    op.ExecutionTime.Milliseconds(),
	}
}

func (h *Handler) handleOperations(w http.ResponseWriter, r *http.Request) {
	filter, err := operationFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	operations, err := h.operations.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response := make([]operationResponse, 0, len(operations))
	for _, op := range operations {
		response = append(response, toOperationResponse(op))
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *Handler) handleOperationsExport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "pdf" {
		respondError(w, http.StatusBadRequest, "format must be xlsx or pdf")
		return
	}
	filter, err := operationFilterFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	operations, err := h.operations.List(r.Context(), filter)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summary, err := h.operations.SuccessSummary(r.Context())
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var payload []byte
	var contentType, filename string
	switch format {
	case "pdf":
		payload, err = interfaces.BuildOperationsPDF(summary, operations)
		contentType = "application/pdf"
		filename = "merge-operations.pdf"
	default:
		payload, err = interfaces.BuildOperationsXLSX(summary, operations)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = "merge-operations.xlsx"
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *Handler) handleLatestOperation(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		respondError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	op, err := h.operations.FindLatestByAccount(r.Context(), accountID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if op == nil {
		respondError(w, http.StatusNotFound, "no operations for account")
		return
	}
	respondJSON(w, http.StatusOK, toOperationResponse(op))
}

type statisticsResponse struct {
	ID                       int64                            `json:"id"`
	AccountID                string                           `json:"account_id"`
	StatisticsTime           time.Time                        `json:"statistics_time"`
	Strategy                 string                           `json:"strategy"`
	MinAmountThreshold       string                           `json:"min_amount_threshold"`
	TotalSmallRecords        int                              `json:"total_small_records"`
	TotalSmallAmount         string                           `json:"total_small_amount"`
	MergeableRecords         int                              `json:"mergeable_records"`
	PotentialRecordReduction int                              `json:"potential_record_reduction"`
	MergeEfficiency          float64                          `json:"merge_efficiency"`
	AverageAmount            string                           `json:"average_amount"`
	TimeWindowGroups         int                              `json:"time_window_groups"`
	GroupStats               map[string]merge.WindowGroupStat `json:"group_stats,omitempty"`
}

func toStatisticsResponse(stats *merge.MergeStatistics) statisticsResponse {
	return statisticsResponse{
		ID:                       stats.ID,
		AccountID:                stats.AccountID,
		StatisticsTime:           stats.StatisticsTime,
		Strategy:                 string(stats.Strategy),
		MinAmountThreshold:       stats.MinAmountThreshold.String(),
		TotalSmallRecords:        stats.TotalSmallRecords,
		TotalSmallAmount:         stats.TotalSmallAmount.String(),
		MergeableRecords:         stats.MergeableRecords,
		PotentialRecordReduction: stats.PotentialRecordReduction,
		MergeEfficiency:          stats.MergeEfficiency,
		AverageAmount:            stats.AverageAmount.String(),
		TimeWindowGroups:         stats.TimeWindowGroups,
		GroupStats:               stats.GroupStats,
	}
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	filter := merge.StatisticsFilter{
		AccountID: r.URL.Query().Get("account_id"),
	}
	if value := r.URL.Query().Get("strategy"); value != "" {
		strategy, err := credit.ParseStrategy(value)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Strategy = strategy
	}
	var err error
	if filter.From, err = parseTimeQuery(r, "from"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.To, err = parseTimeQuery(r, "to"); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit, err = parseLimitQuery(r); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	snapshots, err := h.statistics.List(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response := make([]statisticsResponse, 0, len(snapshots))
	for _, stats := range snapshots {
		response = append(response, toStatisticsResponse(stats))
	}
	respondJSON(w, http.StatusOK, response)
}

// handleLiveStats computes statistics directly against the ledger rather than
// reading a stored snapshot. With a strategy parameter the response carries
// window groups.
func (h *Handler) handleLiveStats(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		respondError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, credit.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "account not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	minAmount := application.DefaultMinAmount
	if value := r.URL.Query().Get("min_amount"); value != "" {
		parsed, err := decimal.NewFromString(value)
		if err != nil || !parsed.IsPositive() {
			respondError(w, http.StatusBadRequest, "min_amount must be a positive number")
			return
		}
		minAmount = parsed
	}

	var stats *merge.SmallAmountStats
	if value := r.URL.Query().Get("strategy"); value != "" {
		strategy, err := credit.ParseStrategy(value)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		stats, err = h.service.GetDetailedSmallAmountStats(r.Context(), account, minAmount, strategy)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		stats, err = h.service.GetSmallAmountStats(r.Context(), account, minAmount)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleDistribution(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		respondError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, credit.ErrAccountNotFound) {
			respondError(w, http.StatusNotFound, "account not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	minAmount := application.DefaultMinAmount
	if value := r.URL.Query().Get("min_amount"); value != "" {
		parsed, err := decimal.NewFromString(value)
		if err != nil || !parsed.IsPositive() {
			respondError(w, http.StatusBadRequest, "min_amount must be a positive number")
			return
		}
		minAmount = parsed
	}
	distribution, err := h.service.GetSmallAmountDistribution(r.Context(), account, minAmount)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, distribution)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.operations.SuccessSummary(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"operations":     summary.Operations,
		"merged_records": summary.MergedRecords,
		"total_amount":   summary.TotalAmount.String(),
	})
}

func operationFilterFromQuery(r *http.Request) (merge.OperationFilter, error) {
	filter := merge.OperationFilter{
		AccountID: r.URL.Query().Get("account_id"),
		Status:    merge.OperationStatus(r.URL.Query().Get("status")),
	}
	if value := r.URL.Query().Get("strategy"); value != "" {
		strategy, err := credit.ParseStrategy(value)
		if err != nil {
			return merge.OperationFilter{}, err
		}
		filter.Strategy = strategy
	}
	var err error
	if filter.From, err = parseTimeQuery(r, "from"); err != nil {
		return merge.OperationFilter{}, err
	}
	if filter.To, err = parseTimeQuery(r, "to"); err != nil {
		return merge.OperationFilter{}, err
	}
	if filter.Limit, err = parseLimitQuery(r); err != nil {
		return merge.OperationFilter{}, err
	}
	return filter, nil
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func parseLimitQuery(r *http.Request) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
