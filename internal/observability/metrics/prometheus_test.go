package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var pm *PrometheusMetrics
	assert.NotPanics(t, func() {
		pm.RecordHTTPRequest("GET", "/x", "200", time.Millisecond)
		pm.RecordForecast("monthly", "model", "ok", 3, time.Millisecond)
		pm.RecordCacheLookup("kpi", true)
		pm.RecordError("forecast", "inference")
		pm.SetDatasetRows(10)
	})
}

func TestRecordForecast(t *testing.T) {
	pm, err := NewPrometheusMetrics(nil, nil)
	require.NoError(t, err)

	pm.RecordForecast("monthly", "model", "ok", 3, 5*time.Millisecond)
	pm.RecordForecast("monthly", "model", "ok", 2, 5*time.Millisecond)
	pm.RecordCacheLookup("kpi", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.forecastsTotal.WithLabelValues("monthly", "model", "ok")))
	assert.Equal(t, 5.0, testutil.ToFloat64(pm.forecastSteps.WithLabelValues("monthly")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.cacheRequestsTotal.WithLabelValues("kpi", "miss")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	pm, err := NewPrometheusMetrics(nil, nil)
	require.NoError(t, err)
	pm.SetDatasetRows(42)

	rec := httptest.NewRecorder()
	pm.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "salesforecast_dataset_rows 42")
}
