package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/pkg/constants"
)

// PrometheusMetrics provides Prometheus-based metrics collection. A nil
// *PrometheusMetrics is valid and records nothing.
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	config   *PrometheusConfig

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         prometheus.Counter

	// Forecast metrics
	forecastsTotal   *prometheus.CounterVec
	forecastDuration *prometheus.HistogramVec
	forecastSteps    *prometheus.CounterVec
	kpiProducts      *prometheus.CounterVec

	// Storage and cache metrics
	storageOperationsTotal *prometheus.CounterVec
	storageDuration        *prometheus.HistogramVec
	cacheRequestsTotal     *prometheus.CounterVec
	artifactsLoaded        *prometheus.GaugeVec
	datasetRows            prometheus.Gauge

	errorsTotal *prometheus.CounterVec
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Path      string `json:"path" mapstructure:"path"`
	Namespace string `json:"namespace" mapstructure:"namespace"`
	Subsystem string `json:"subsystem" mapstructure:"subsystem"`
}

// DefaultPrometheusConfig returns the default metrics configuration
func DefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   true,
		Path:      "/metrics",
		Namespace: constants.AppName,
		Subsystem: "",
	}
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with its own
// registry.
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = DefaultPrometheusConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}
	pm.initializeMetrics()

	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return pm, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordHTTPRequest counts a served request. path is the route template.
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	pm.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRateLimited counts a rejected request.
func (pm *PrometheusMetrics) RecordRateLimited() {
	if pm == nil {
		return
	}
	pm.rateLimited.Inc()
}

// RecordForecast records one forecast run and its autoregressive steps.
func (pm *PrometheusMetrics) RecordForecast(granularity, strategy, status string, steps int, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.forecastsTotal.WithLabelValues(granularity, strategy, status).Inc()
	pm.forecastDuration.WithLabelValues(granularity).Observe(duration.Seconds())
	pm.forecastSteps.WithLabelValues(granularity).Add(float64(steps))
}

// RecordKPIProduct counts a product entering or skipped by a KPI aggregate.
func (pm *PrometheusMetrics) RecordKPIProduct(outcome string) {
	if pm == nil {
		return
	}
	pm.kpiProducts.WithLabelValues(outcome).Inc()
}

// RecordStorageOperation records a call to an external backend.
func (pm *PrometheusMetrics) RecordStorageOperation(backend, operation, status string, duration time.Duration) {
	if pm == nil {
		return
	}
	pm.storageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	pm.storageDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordCacheLookup counts a cache hit or miss.
func (pm *PrometheusMetrics) RecordCacheLookup(cache string, hit bool) {
	if pm == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	pm.cacheRequestsTotal.WithLabelValues(cache, result).Inc()
}

// SetArtifactsLoaded reports how many artifact bundles are in memory.
func (pm *PrometheusMetrics) SetArtifactsLoaded(kind string, count float64) {
	if pm == nil {
		return
	}
	pm.artifactsLoaded.WithLabelValues(kind).Set(count)
}

// SetDatasetRows reports the size of the loaded dataset.
func (pm *PrometheusMetrics) SetDatasetRows(rows int) {
	if pm == nil {
		return
	}
	pm.datasetRows.Set(float64(rows))
}

// RecordError counts an error by component and error type.
func (pm *PrometheusMetrics) RecordError(component, errorType string) {
	if pm == nil {
		return
	}
	pm.errorsTotal.WithLabelValues(component, errorType).Inc()
}

func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace
	subsystem := pm.config.Subsystem

	pm.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	pm.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	pm.rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		},
	)

	pm.forecastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "forecasts_total",
			Help:      "Total number of forecast runs",
		},
		[]string{"granularity", "strategy", "status"},
	)

	pm.forecastDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "forecast_duration_seconds",
			Help:      "Forecast duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"granularity"},
	)

	pm.forecastSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "forecast_steps_total",
			Help:      "Autoregressive inference steps",
		},
		[]string{"granularity"},
	)

	pm.kpiProducts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "kpi_products_total",
			Help:      "Products processed by KPI aggregation",
		},
		[]string{"outcome"},
	)

	pm.storageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"backend", "operation", "status"},
	)

	pm.storageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "storage_operation_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5},
		},
		[]string{"backend", "operation"},
	)

	pm.cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_requests_total",
			Help:      "Cache lookups by result",
		},
		[]string{"cache", "result"},
	)

	pm.artifactsLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "artifacts_loaded",
			Help:      "Number of artifact bundles in memory",
		},
		[]string{"kind"},
	)

	pm.datasetRows = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dataset_rows",
			Help:      "Transactions in the loaded dataset",
		},
	)

	pm.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"component", "type"},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() error {
	metrics := []prometheus.Collector{
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
		pm.rateLimited,
		pm.forecastsTotal,
		pm.forecastDuration,
		pm.forecastSteps,
		pm.kpiProducts,
		pm.storageOperationsTotal,
		pm.storageDuration,
		pm.cacheRequestsTotal,
		pm.artifactsLoaded,
		pm.datasetRows,
		pm.errorsTotal,
	}

	for _, metric := range metrics {
		if err := pm.registry.Register(metric); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

// GetRegistry returns the Prometheus registry
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// GetConfig returns the configuration
func (pm *PrometheusMetrics) GetConfig() *PrometheusConfig {
	return pm.config
}
