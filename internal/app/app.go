// Package app assembles the forecasting components from configuration. The
// server and the CLI share it so both see the same dataset, artifacts and
// caches.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/inferloop/salesforecast/internal/artifacts"
	"github.com/inferloop/salesforecast/internal/cache"
	"github.com/inferloop/salesforecast/internal/config"
	"github.com/inferloop/salesforecast/internal/dataset"
	"github.com/inferloop/salesforecast/internal/forecast"
	"github.com/inferloop/salesforecast/internal/kpi"
	"github.com/inferloop/salesforecast/internal/observability/health"
	"github.com/inferloop/salesforecast/internal/observability/metrics"
	"github.com/inferloop/salesforecast/internal/observability/tracing"
	"github.com/inferloop/salesforecast/internal/storage/implementations/influxdb"
	"github.com/inferloop/salesforecast/internal/storage/implementations/redis"
	"github.com/inferloop/salesforecast/internal/storage/implementations/s3"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/interfaces"
)

const healthCheckTimeout = 5 * time.Second

// Options adjust how much New starts.
type Options struct {
	// Watch overrides dataset.watch; the CLI never watches.
	Watch *bool
	// SkipSink leaves the InfluxDB sink closed even when enabled.
	SkipSink bool
}

// App holds the wired components.
type App struct {
	Config     *config.Config
	Logger     *logrus.Logger
	Metrics    *metrics.PrometheusMetrics
	Store      *dataset.Store
	Monthly    *artifacts.Cache
	Weekly     *artifacts.WeeklyStore
	Forecaster *forecast.Forecaster
	KPI        *kpi.Aggregator
	Health     *health.HealthMonitor
	Sink       *influxdb.ForecastSink

	kpiCache interfaces.KPICache
	redis    *redis.KPICache
	postgres *dataset.PostgresSource
	watcher  *dataset.Watcher
	tracer   *sdktrace.TracerProvider
	cancel   context.CancelFunc
}

// New builds every component. On error the components opened so far are
// closed again.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts Options) (a *App, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logrus.New()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a = &App{Config: cfg, Logger: logger, cancel: cancel}
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()

	if a.tracer, err = tracing.InitTracer(ctx, &cfg.Tracing); err != nil {
		return a, errors.NewConfigurationError("failed to initialise tracing").WithDetails(err.Error())
	}

	if cfg.Metrics.Enabled {
		if a.Metrics, err = metrics.NewPrometheusMetrics(&cfg.Metrics, logger); err != nil {
			return a, err
		}
	}

	if cfg.Artifacts.SyncOnStart {
		if _, err = SyncArtifacts(ctx, cfg, logger, a.Metrics, false); err != nil {
			return a, err
		}
	}

	if err = a.openDataset(ctx, runCtx, opts); err != nil {
		return a, err
	}

	a.Monthly = artifacts.NewCache(&cfg.Artifacts.Monthly, logger)
	if _, loadErr := a.Monthly.Load(ctx); loadErr != nil {
		// The health check retries the load; forecasts fail until it succeeds.
		logger.WithError(loadErr).Error("Monthly artifacts unavailable")
	} else {
		a.Metrics.SetArtifactsLoaded("monthly", 1)
	}

	if a.Weekly, err = artifacts.NewWeeklyStore(cfg.Artifacts.WeeklyDir, cfg.Artifacts.WeeklyCacheSize, logger); err != nil {
		return a, err
	}

	a.Forecaster = forecast.NewForecaster(a.Monthly, a.Weekly, &cfg.Forecast, logger).WithMetrics(a.Metrics)

	if a.kpiCache, err = a.openKPICache(ctx); err != nil {
		return a, err
	}
	kpiConfig := cfg.KPI.Config
	a.KPI = kpi.NewAggregator(a.Forecaster, a.kpiCache, &kpiConfig, logger).WithMetrics(a.Metrics)

	if cfg.Sink.Enabled && !opts.SkipSink {
		if a.Sink, err = OpenSink(ctx, cfg, logger); err != nil {
			return a, err
		}
	}

	a.registerHealthChecks()

	logger.WithFields(logrus.Fields{
		"products":  len(a.Store.Products()),
		"version":   a.Store.Version(),
		"kpi_cache": cfg.KPI.Cache,
		"sink":      a.Sink != nil,
	}).Info("Application initialised")
	return a, nil
}

func (a *App) openDataset(ctx, runCtx context.Context, opts Options) error {
	cfg := a.Config.Dataset

	var source interfaces.TransactionSource
	switch cfg.Source {
	case config.SourcePostgres:
		pg, err := dataset.NewPostgresSource(&cfg.Postgres, a.Logger)
		if err != nil {
			return err
		}
		start := time.Now()
		err = pg.Connect(ctx)
		a.Metrics.RecordStorageOperation("postgres", "connect", status(err), time.Since(start))
		if err != nil {
			return err
		}
		a.postgres = pg
		source = pg
	default:
		source = dataset.NewCSVSource(cfg.Path, a.Logger)
	}

	a.Store = dataset.NewStore(source, a.Logger)
	if err := a.ReloadDataset(ctx); err != nil {
		return err
	}

	watch := cfg.Watch
	if opts.Watch != nil {
		watch = *opts.Watch
	}
	if !watch || cfg.Source != config.SourceCSV {
		return nil
	}
	w, err := dataset.NewWatcher(a.Store, cfg.Path, cfg.Debounce, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create dataset watcher: %w", err)
	}
	if err := w.Start(runCtx); err != nil {
		w.Stop()
		return fmt.Errorf("failed to start dataset watcher: %w", err)
	}
	a.watcher = w
	return nil
}

// ReloadDataset reads the configured source again.
func (a *App) ReloadDataset(ctx context.Context) error {
	start := time.Now()
	err := a.Store.Reload(ctx)
	a.Metrics.RecordStorageOperation(a.Config.Dataset.Source, "load", status(err), time.Since(start))
	if err != nil {
		return err
	}
	a.Metrics.SetDatasetRows(len(a.Store.Transactions()))
	return nil
}

func (a *App) openKPICache(ctx context.Context) (interfaces.KPICache, error) {
	switch a.Config.KPI.Cache {
	case config.CacheNone:
		return nil, nil
	case config.CacheRedis:
		rc, err := redis.NewKPICache(&a.Config.KPI.Redis, a.Logger)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		err = rc.Connect(ctx)
		a.Metrics.RecordStorageOperation("redis", "connect", status(err), time.Since(start))
		if err != nil {
			return nil, err
		}
		a.redis = rc
		return rc, nil
	default:
		size := a.Config.KPI.CacheSize
		if size < 1 {
			size = constants.DefaultCacheSize
		}
		return cache.NewMemoryKPICache(size)
	}
}

func (a *App) registerHealthChecks() {
	a.Health = health.NewHealthMonitor(constants.AppVersion, a.Logger)

	a.Health.RegisterCheck(health.NewBasicHealthCheck("artifacts", func(ctx context.Context) error {
		if _, err := a.Monthly.Load(ctx); err != nil {
			return err
		}
		a.Metrics.SetArtifactsLoaded("monthly", 1)
		a.Metrics.SetArtifactsLoaded("weekly", float64(a.Weekly.Len()))
		return nil
	}, true, healthCheckTimeout))

	a.Health.RegisterCheck(health.NewBasicHealthCheck("dataset", func(ctx context.Context) error {
		if len(a.Store.Transactions()) == 0 {
			return fmt.Errorf("%w: dataset is empty", health.ErrDegraded)
		}
		return nil
	}, false, healthCheckTimeout))

	if a.redis != nil {
		a.Health.RegisterCheck(health.NewBasicHealthCheck("kpi_cache", a.redis.Ping, false, healthCheckTimeout))
	}
	if a.Sink != nil {
		a.Health.RegisterCheck(health.NewBasicHealthCheck("forecast_sink", a.Sink.Health, false, healthCheckTimeout))
	}
}

// SyncArtifacts mirrors the artifact bucket into artifacts.sync_dir, or
// uploads the directory when push is set. pm may be nil.
func SyncArtifacts(ctx context.Context, cfg *config.Config, logger *logrus.Logger, pm *metrics.PrometheusMetrics, push bool) (*s3.SyncResult, error) {
	syncer, err := s3.NewArtifactSyncer(&cfg.Artifacts.S3, logger)
	if err != nil {
		return nil, err
	}
	if err := syncer.Connect(ctx); err != nil {
		return nil, err
	}

	op, sync := "pull", syncer.Pull
	if push {
		op, sync = "push", syncer.Push
	}

	start := time.Now()
	result, err := sync(ctx, cfg.Artifacts.SyncDir)
	pm.RecordStorageOperation("s3", op, status(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"operation":   op,
		"transferred": len(result.Transferred),
		"unchanged":   len(result.Unchanged),
		"bytes":       result.Bytes,
	}).Info("Artifact sync finished")
	return result, nil
}

// OpenSink connects the InfluxDB forecast sink.
func OpenSink(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*influxdb.ForecastSink, error) {
	sink, err := influxdb.NewForecastSink(&cfg.Sink.InfluxDB, logger)
	if err != nil {
		return nil, err
	}
	if err := sink.Connect(ctx); err != nil {
		return nil, err
	}
	return sink, nil
}

// Close releases every component that holds a connection or goroutine.
func (a *App) Close(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.watcher != nil {
		keep(a.watcher.Stop())
	}
	if a.kpiCache != nil {
		keep(a.kpiCache.Close())
	}
	if a.postgres != nil {
		keep(a.postgres.Close())
	}
	if a.Sink != nil {
		keep(a.Sink.Close())
	}
	keep(tracing.Shutdown(ctx, a.tracer))

	if first != nil {
		a.Logger.WithError(first).Warn("Error while closing application")
	}
	return first
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
