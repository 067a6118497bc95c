package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/internal/config"
	"github.com/inferloop/salesforecast/internal/dataset"
	"github.com/inferloop/salesforecast/internal/forecast"
	"github.com/inferloop/salesforecast/internal/kpi"
	"github.com/inferloop/salesforecast/internal/observability/health"
	"github.com/inferloop/salesforecast/internal/observability/metrics"
	"github.com/inferloop/salesforecast/pkg/constants"
)

// Dependencies are the components the HTTP API serves.
type Dependencies struct {
	Store      *dataset.Store
	Forecaster *forecast.Forecaster
	KPI        *kpi.Aggregator
	Health     *health.HealthMonitor
	Metrics    *metrics.PrometheusMetrics
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     *logrus.Logger
	config     *config.ServerConfig
	handlers   *Handlers
	metrics    *metrics.PrometheusMetrics
	limiter    *RateLimiter
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *config.ServerConfig, deps Dependencies, logger *logrus.Logger) (*Server, error) {
	if cfg == nil {
		cfg = &config.Default().Server
	}
	if logger == nil {
		logger = logrus.New()
	}
	if deps.Store == nil || deps.Forecaster == nil || deps.KPI == nil {
		return nil, fmt.Errorf("server requires a dataset store, a forecaster and a KPI aggregator")
	}
	if deps.Health == nil {
		deps.Health = health.NewHealthMonitor(constants.AppVersion, logger)
	}

	limiter, err := NewRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		config:   cfg,
		handlers: NewHandlers(deps, logger),
		metrics:  deps.Metrics,
		limiter:  limiter,
	}
	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

// Start serves until Stop is called. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.WithField("address", s.httpServer.Addr).Info("Starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = constants.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Error shutting down HTTP server")
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// setupRoutes sets up the HTTP routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix(constants.APIPrefix).Subrouter()

	api.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)

	api.HandleFunc("/products", s.handlers.Products).Methods(http.MethodGet)
	api.HandleFunc("/products/summary", s.handlers.ProductSummary).Methods(http.MethodGet)
	api.HandleFunc("/dataset", s.handlers.UploadDataset).Methods(http.MethodPut)

	api.HandleFunc("/forecast", s.handlers.Forecast).Methods(http.MethodPost)
	api.HandleFunc("/forecast/scenario", s.handlers.ForecastScenario).Methods(http.MethodPost)
	api.HandleFunc("/forecast/weekly", s.handlers.ForecastWeekly).Methods(http.MethodPost)

	api.HandleFunc("/kpi", s.handlers.KPI).Methods(http.MethodGet)
	api.HandleFunc("/kpi/monthly", s.handlers.KPIMonthly).Methods(http.MethodGet)

	if s.metrics != nil {
		path := s.metrics.GetConfig().Path
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, s.metrics.Handler()).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

// setupMiddleware sets up HTTP middleware. Order matters: the request ID
// must exist before logging and recovery read it.
func (s *Server) setupMiddleware() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.requestSizeLimitMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.rateLimitMiddleware)
	if s.config.RequestTimeout > 0 {
		s.router.Use(s.timeoutMiddleware(s.config.RequestTimeout))
	}
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
