package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/internal/artifacts"
	"github.com/inferloop/salesforecast/internal/cache"
	"github.com/inferloop/salesforecast/internal/config"
	"github.com/inferloop/salesforecast/internal/dataset"
	"github.com/inferloop/salesforecast/internal/forecast"
	"github.com/inferloop/salesforecast/internal/kpi"
	"github.com/inferloop/salesforecast/internal/observability/metrics"
	"github.com/inferloop/salesforecast/internal/testutil"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/models"
)

func fixtureTransactions() []models.Transaction {
	weekly := testutil.DailyTransactions("Rifle X", time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), 7*30,
		func(i int) int { return 1 + i%3 })
	monthly := testutil.MonthlyTransactions("Pistol", testutil.MonthStart(2023, time.August), testutil.RifleXQuantities)
	return append(weekly, monthly...)
}

func newTestServer(t *testing.T, mutate func(c *config.ServerConfig)) *Server {
	t.Helper()
	env := testutil.NewTestEnvironment(t)

	modelPath, scalerPath := testutil.WriteMonthlyArtifacts(t, env.TempDir, testutil.MonthlyArtifactOptions{FeatureCols: true})
	monthly := artifacts.NewCache(&artifacts.CacheConfig{ModelPath: modelPath, ScalerPath: scalerPath, DefaultLagDepth: 6}, env.Logger)

	weeklyDir := filepath.Join(env.TempDir, "weekly")
	testutil.WriteWeeklyArtifacts(t, weeklyDir, "Rifle_X")
	weekly, err := artifacts.NewWeeklyStore(weeklyDir, 4, env.Logger)
	require.NoError(t, err)

	pm, err := metrics.NewPrometheusMetrics(nil, env.Logger)
	require.NoError(t, err)

	store := dataset.NewStore(nil, env.Logger)
	store.Replace(fixtureTransactions())

	forecaster := forecast.NewForecaster(monthly, weekly, nil, env.Logger).WithMetrics(pm)
	kpiCache, err := cache.NewMemoryKPICache(16)
	require.NoError(t, err)
	aggregator := kpi.NewAggregator(forecaster, kpiCache, nil, env.Logger).WithMetrics(pm)

	cfg := config.Default().Server
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewServer(&cfg, Dependencies{
		Store:      store,
		Forecaster: forecaster,
		KPI:        aggregator,
		Metrics:    pm,
	}, env.Logger)
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(constants.HeaderRequestID))
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set(constants.HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(constants.HeaderRequestID))
}

func TestProducts(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProductsResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, []string{"Pistol", "Rifle X"}, resp.Products)
	assert.NotEmpty(t, resp.Version)

	rec = do(t, s, http.MethodGet, "/api/v1/products/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary []models.ProductSummary
	decodeBody(t, rec, &summary)
	assert.Len(t, summary, 2)
}

func TestForecastEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/forecast", ForecastRequest{Product: "Pistol", Horizon: 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fc models.Forecast
	decodeBody(t, rec, &fc)
	assert.Len(t, fc.Units, 3)
	assert.Len(t, fc.Periods, 3)
	testutil.AssertNonNegative(t, fc.Units)
}

func TestForecastEndpointErrors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown product", ForecastRequest{Product: "Bazooka", Horizon: 3}, http.StatusUnprocessableEntity, "NO_DATA_FOR_PRODUCT"},
		{"bad scenario", ForecastRequest{Product: "Pistol", Horizon: 3, Promotion: "Z"}, http.StatusBadRequest, "INVALID_SCENARIO"},
		{"horizon too long", ForecastRequest{Product: "Pistol", Horizon: 61}, http.StatusBadRequest, ""},
		{"unknown field", map[string]interface{}{"product": "Pistol", "months": 3}, http.StatusBadRequest, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/v1/forecast", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				assert.Contains(t, rec.Body.String(), tt.code)
			}
		})
	}
}

func TestForecastScenarioEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/forecast/scenario",
		ForecastRequest{Product: "Pistol", Horizon: 2, Promotion: "c", Holiday: "4"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cmp models.ScenarioComparison
	decodeBody(t, rec, &cmp)
	assert.Len(t, cmp.Baseline, 2)
	assert.Len(t, cmp.Scenario, 2)
	assert.Equal(t, "C", cmp.Applied.Promotion)
}

func TestForecastWeeklyEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/forecast/weekly", WeeklyForecastRequest{Product: "Rifle X", Horizon: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var fc models.Forecast
	decodeBody(t, rec, &fc)
	assert.Len(t, fc.Units, 2)
	assert.Equal(t, models.GranularityWeekly, fc.Granularity)

	rec = do(t, s, http.MethodPost, "/api/v1/forecast/weekly", WeeklyForecastRequest{Product: "Pistol", Horizon: 2})
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestKPIEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/kpi?horizon=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var totals models.KPITotals
	decodeBody(t, rec, &totals)
	assert.Equal(t, 2, totals.Horizon)
	assert.Len(t, totals.Products, 2)

	again := do(t, s, http.MethodGet, "/api/v1/kpi?horizon=2", nil)
	assert.JSONEq(t, rec.Body.String(), again.Body.String(), "second call is served from cache")

	rec = do(t, s, http.MethodGet, "/api/v1/kpi/monthly?horizon=3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var outlook models.MonthlyOutlook
	decodeBody(t, rec, &outlook)
	assert.NotEmpty(t, outlook.Months)
	assert.LessOrEqual(t, len(outlook.Peaks), 3)

	for _, bad := range []string{"abc", "0", "61"} {
		rec = do(t, s, http.MethodGet, "/api/v1/kpi?horizon="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestUploadDataset(t *testing.T) {
	s := newTestServer(t, nil)
	path := testutil.WriteCSV(t, t.TempDir(), "upload.csv",
		testutil.MonthlyTransactions("Shotgun", testutil.MonthStart(2023, time.January), testutil.RifleXQuantities))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/dataset", bytes.NewReader(data))
	req.Header.Set(constants.HeaderContentType, constants.ContentTypeCSV)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 24, resp.Transactions)
	assert.Equal(t, 1, resp.Products)

	rec = do(t, s, http.MethodGet, "/api/v1/products", nil)
	assert.Contains(t, rec.Body.String(), "Shotgun")
	assert.NotContains(t, rec.Body.String(), "Pistol")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.ServerConfig) {
		c.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}
	})

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodGet, "/api/v1/products", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, s, http.MethodGet, "/api/v1/products", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get(constants.HeaderRetryAfter))
}

func TestRequestTooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.ServerConfig) { c.MaxRequestSize = 16 })
	rec := do(t, s, http.MethodPost, "/api/v1/forecast", ForecastRequest{Product: strings.Repeat("x", 64), Horizon: 1})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMetricsAndNotFound(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodGet, "/api/v1/products", nil)

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "salesforecast_http_requests_total")

	rec = do(t, s, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}
