package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/internal/dataset"
	"github.com/inferloop/salesforecast/internal/forecast"
	"github.com/inferloop/salesforecast/internal/kpi"
	"github.com/inferloop/salesforecast/internal/observability/health"
	"github.com/inferloop/salesforecast/internal/observability/metrics"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// Handlers contains all HTTP handlers for the forecasting API
type Handlers struct {
	store      *dataset.Store
	forecaster *forecast.Forecaster
	kpi        *kpi.Aggregator
	health     *health.HealthMonitor
	metrics    *metrics.PrometheusMetrics
	logger     *logrus.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Dependencies, logger *logrus.Logger) *Handlers {
	return &Handlers{
		store:      deps.Store,
		forecaster: deps.Forecaster,
		kpi:        deps.KPI,
		health:     deps.Health,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// ForecastRequest is the body of the monthly forecast endpoints.
type ForecastRequest struct {
	Product   string `json:"product"`
	Horizon   int    `json:"horizon"`
	Promotion string `json:"promotion,omitempty"`
	Holiday   string `json:"holiday,omitempty"`
}

// WeeklyForecastRequest is the body of POST /forecast/weekly.
type WeeklyForecastRequest struct {
	Product     string `json:"product"`
	Horizon     int    `json:"horizon"`
	TargetMonth int    `json:"target_month,omitempty"`
	Strategy    string `json:"strategy,omitempty"`
}

// ProductsResponse lists the products of the current dataset.
type ProductsResponse struct {
	Products []string `json:"products"`
	Version  string   `json:"version"`
}

// UploadResponse reports a dataset replacement.
type UploadResponse struct {
	Rows         int    `json:"rows"`
	Dropped      int    `json:"dropped"`
	Transactions int    `json:"transactions"`
	Products     int    `json:"products"`
	Version      string `json:"version"`
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := h.health.Run(r.Context())
	code := http.StatusOK
	if status.OverallStatus == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, status)
}

// Products handles GET /api/v1/products
func (h *Handlers) Products(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	products := snap.Products
	if products == nil {
		products = []string{}
	}
	h.writeJSON(w, http.StatusOK, ProductsResponse{Products: products, Version: snap.Version})
}

// ProductSummary handles GET /api/v1/products/summary
func (h *Handlers) ProductSummary(w http.ResponseWriter, r *http.Request) {
	summary := dataset.Summarize(h.store.Transactions())
	if summary == nil {
		summary = []models.ProductSummary{}
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// UploadDataset handles PUT /api/v1/dataset with a CSV body. The new rows
// replace the dataset; artifacts are untouched.
func (h *Handlers) UploadDataset(w http.ResponseWriter, r *http.Request) {
	result, err := dataset.ReadTransactions(r.Body)
	if err != nil {
		h.writeError(w, r, errors.NewValidationError(errors.CodeInvalidInput, "unreadable CSV").WithDetails(err.Error()))
		return
	}
	if len(result.Transactions) == 0 {
		h.writeError(w, r, errors.NewEmptyInputError(""))
		return
	}

	h.store.Replace(result.Transactions)
	snap := h.store.Snapshot()
	h.metrics.SetDatasetRows(len(snap.Transactions))

	h.writeJSON(w, http.StatusOK, UploadResponse{
		Rows:         result.Rows,
		Dropped:      result.Dropped,
		Transactions: len(snap.Transactions),
		Products:     len(snap.Products),
		Version:      snap.Version,
	})
}

// Forecast handles POST /api/v1/forecast
func (h *Handlers) Forecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Horizon == 0 {
		req.Horizon = constants.DefaultHorizon
	}

	fc, err := h.forecaster.ForecastSeries(r.Context(), h.store.Transactions(), req.Product, req.Horizon,
		models.Scenario{Promotion: req.Promotion, Holiday: req.Holiday})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fc)
}

// ForecastScenario handles POST /api/v1/forecast/scenario
func (h *Handlers) ForecastScenario(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Horizon == 0 {
		req.Horizon = constants.DefaultHorizon
	}

	cmp, err := h.forecaster.Simulate(r.Context(), h.store.Transactions(), req.Product, req.Horizon,
		models.Scenario{Promotion: req.Promotion, Holiday: req.Holiday})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cmp)
}

// ForecastWeekly handles POST /api/v1/forecast/weekly
func (h *Handlers) ForecastWeekly(w http.ResponseWriter, r *http.Request) {
	var req WeeklyForecastRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Horizon == 0 {
		req.Horizon = constants.DefaultWeeklyHorizon
	}

	fc, err := h.forecaster.ForecastWeekly(r.Context(), h.store.Transactions(), forecast.WeeklyRequest{
		Product:     req.Product,
		Horizon:     req.Horizon,
		TargetMonth: time.Month(req.TargetMonth),
		Strategy:    req.Strategy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, fc)
}

// KPI handles GET /api/v1/kpi?horizon=
func (h *Handlers) KPI(w http.ResponseWriter, r *http.Request) {
	horizon, ok := h.horizonParam(w, r)
	if !ok {
		return
	}
	snap := h.store.Snapshot()
	totals, err := h.kpi.CachedTotals(r.Context(), snap.Version, snap.Transactions, snap.Products, horizon)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, totals)
}

// KPIMonthly handles GET /api/v1/kpi/monthly?horizon=
func (h *Handlers) KPIMonthly(w http.ResponseWriter, r *http.Request) {
	horizon, ok := h.horizonParam(w, r)
	if !ok {
		return
	}
	snap := h.store.Snapshot()
	outlook, err := h.kpi.MonthlyOutlook(r.Context(), snap.Transactions, snap.Products, horizon)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, outlook)
}

// NotFound handles unmatched routes
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	appErr := errors.NewAppError(errors.ErrorTypeValidation, "NOT_FOUND", "no route for "+r.Method+" "+r.URL.Path)
	appErr.HTTPStatus = http.StatusNotFound
	h.writeError(w, r, appErr)
}

func (h *Handlers) horizonParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("horizon")
	if raw == "" {
		return constants.DefaultHorizon, true
	}
	horizon, err := strconv.Atoi(raw)
	if err != nil || horizon < 1 || horizon > constants.MaxHorizon {
		h.writeError(w, r, errors.NewValidationError(errors.CodeInvalidInput, "horizon must be an integer between 1 and "+strconv.Itoa(constants.MaxHorizon)))
		return 0, false
	}
	return horizon, true
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if ct := r.Header.Get(constants.HeaderContentType); ct != "" && !strings.HasPrefix(ct, constants.ContentTypeJSON) {
		appErr := errors.NewValidationError(errors.CodeInvalidInput, "expected "+constants.ContentTypeJSON)
		appErr.HTTPStatus = http.StatusUnsupportedMediaType
		h.writeError(w, r, appErr)
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.writeError(w, r, errors.NewValidationError(errors.CodeInvalidInput, "invalid request body").WithDetails(err.Error()))
		return false
	}
	return true
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Warn("Failed to encode response")
	}
}

// writeError maps err onto its AppError status. Errors outside the
// pipeline's taxonomy are reported as internal.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) {
		h.logger.WithError(err).WithField("request_id", getRequestID(r)).Error("Unclassified error")
		appErr = errors.NewInternalError("internal error")
	}
	h.metrics.RecordError("http", string(appErr.Type))

	h.writeJSON(w, errors.HTTPStatusOf(appErr), errors.ErrorResponse{
		Error:     appErr,
		RequestID: getRequestID(r),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	})
}
