// Package config loads service configuration. Environment variables
// prefixed SALESFORECAST_ override the YAML file, which overrides the
// built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/inferloop/salesforecast/internal/artifacts"
	"github.com/inferloop/salesforecast/internal/dataset"
	"github.com/inferloop/salesforecast/internal/forecast"
	"github.com/inferloop/salesforecast/internal/kpi"
	"github.com/inferloop/salesforecast/internal/observability/metrics"
	"github.com/inferloop/salesforecast/internal/observability/tracing"
	"github.com/inferloop/salesforecast/internal/storage/implementations/influxdb"
	"github.com/inferloop/salesforecast/internal/storage/implementations/redis"
	"github.com/inferloop/salesforecast/internal/storage/implementations/s3"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
)

// Dataset sources
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

// KPI cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	Logging   LoggingConfig            `mapstructure:"logging"`
	Dataset   DatasetConfig            `mapstructure:"dataset"`
	Artifacts ArtifactsConfig          `mapstructure:"artifacts"`
	Forecast  forecast.Config          `mapstructure:"forecast"`
	KPI       KPIConfig                `mapstructure:"kpi"`
	Sink      SinkConfig               `mapstructure:"sink"`
	Metrics   metrics.PrometheusConfig `mapstructure:"metrics"`
	Tracing   tracing.Config           `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string          `mapstructure:"host"`
	Port            int             `mapstructure:"port"`
	ReadTimeout     time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration   `mapstructure:"request_timeout"`
	MaxRequestSize  int64           `mapstructure:"max_request_size"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds per-client token bucket settings
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// LoggingConfig selects the logrus level and formatter
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatasetConfig selects where transactions come from
type DatasetConfig struct {
	Source   string                 `mapstructure:"source"`
	Path     string                 `mapstructure:"path"`
	Watch    bool                   `mapstructure:"watch"`
	Debounce time.Duration          `mapstructure:"debounce"`
	Postgres dataset.PostgresConfig `mapstructure:"postgres"`
}

// ArtifactsConfig locates model artifacts and their optional S3 origin
type ArtifactsConfig struct {
	Monthly         artifacts.CacheConfig `mapstructure:"monthly"`
	WeeklyDir       string                `mapstructure:"weekly_dir"`
	WeeklyCacheSize int                   `mapstructure:"weekly_cache_size"`
	SyncOnStart     bool                  `mapstructure:"sync_on_start"`
	SyncDir         string                `mapstructure:"sync_dir"`
	S3              s3.S3Config           `mapstructure:"s3"`
}

// KPIConfig holds aggregation and cache settings
type KPIConfig struct {
	kpi.Config `mapstructure:",squash"`
	Cache      string            `mapstructure:"cache"`
	CacheSize  int               `mapstructure:"cache_size"`
	Redis      redis.RedisConfig `mapstructure:"redis"`
}

// SinkConfig enables forecast export to InfluxDB
type SinkConfig struct {
	Enabled  bool                    `mapstructure:"enabled"`
	InfluxDB influxdb.InfluxDBConfig `mapstructure:"influxdb"`
}

// setDefaults registers every key so environment variables can override
// values absent from the file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", constants.DefaultHost)
	v.SetDefault("server.port", constants.DefaultPort)
	v.SetDefault("server.read_timeout", constants.DefaultReadTimeout)
	v.SetDefault("server.write_timeout", constants.DefaultWriteTimeout)
	v.SetDefault("server.idle_timeout", constants.DefaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", constants.DefaultShutdownTimeout)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.max_request_size", int64(1<<20))
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests_per_minute", constants.DefaultRateLimit)
	v.SetDefault("server.rate_limit.burst", constants.DefaultBurstLimit)

	v.SetDefault("logging.level", constants.DefaultLogLevel)
	v.SetDefault("logging.format", constants.DefaultLogFormat)

	v.SetDefault("dataset.source", SourceCSV)
	v.SetDefault("dataset.path", "data/sales.csv")
	v.SetDefault("dataset.watch", false)
	v.SetDefault("dataset.debounce", 500*time.Millisecond)
	v.SetDefault("dataset.postgres.host", "localhost")
	v.SetDefault("dataset.postgres.port", 5432)
	v.SetDefault("dataset.postgres.database", "sales")
	v.SetDefault("dataset.postgres.username", "")
	v.SetDefault("dataset.postgres.password", "")
	v.SetDefault("dataset.postgres.ssl_mode", "disable")
	v.SetDefault("dataset.postgres.table", "transactions")
	v.SetDefault("dataset.postgres.connect_timeout", 10*time.Second)
	v.SetDefault("dataset.postgres.query_timeout", 30*time.Second)
	v.SetDefault("dataset.postgres.max_connections", 5)
	v.SetDefault("dataset.postgres.max_idle_conns", 2)
	v.SetDefault("dataset.postgres.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("artifacts.monthly.model_path", constants.DefaultModelPath)
	v.SetDefault("artifacts.monthly.scaler_path", constants.DefaultScalerPath)
	v.SetDefault("artifacts.monthly.default_lag_depth", constants.DefaultLagDepth)
	v.SetDefault("artifacts.weekly_dir", constants.DefaultWeeklyDir)
	v.SetDefault("artifacts.weekly_cache_size", constants.DefaultWeeklyCacheSize)
	v.SetDefault("artifacts.sync_on_start", false)
	v.SetDefault("artifacts.sync_dir", ".")
	v.SetDefault("artifacts.s3.region", "us-east-1")
	v.SetDefault("artifacts.s3.bucket", "")
	v.SetDefault("artifacts.s3.prefix", "")
	v.SetDefault("artifacts.s3.access_key_id", "")
	v.SetDefault("artifacts.s3.secret_access_key", "")
	v.SetDefault("artifacts.s3.endpoint", "")
	v.SetDefault("artifacts.s3.force_path_style", false)
	v.SetDefault("artifacts.s3.timeout", 5*time.Minute)
	v.SetDefault("artifacts.s3.max_retries", 3)

	v.SetDefault("forecast.ma_window", constants.DefaultMAWindow)
	v.SetDefault("forecast.max_horizon", constants.MaxHorizon)
	v.SetDefault("forecast.step_timeout", 5*time.Second)
	v.SetDefault("forecast.zigzag_seed", 0)

	v.SetDefault("kpi.workers", constants.DefaultKPIWorkers)
	v.SetDefault("kpi.cache_ttl", constants.DefaultCacheTTL)
	v.SetDefault("kpi.cache", CacheMemory)
	v.SetDefault("kpi.cache_size", constants.DefaultCacheSize)
	v.SetDefault("kpi.redis.addr", "localhost:6379")
	v.SetDefault("kpi.redis.password", "")
	v.SetDefault("kpi.redis.db", 0)
	v.SetDefault("kpi.redis.dial_timeout", 5*time.Second)
	v.SetDefault("kpi.redis.read_timeout", 3*time.Second)
	v.SetDefault("kpi.redis.write_timeout", 3*time.Second)
	v.SetDefault("kpi.redis.pool_size", 10)
	v.SetDefault("kpi.redis.key_prefix", constants.AppName)

	v.SetDefault("sink.enabled", false)
	v.SetDefault("sink.influxdb.url", "http://localhost:8086")
	v.SetDefault("sink.influxdb.token", "")
	v.SetDefault("sink.influxdb.organization", constants.AppName)
	v.SetDefault("sink.influxdb.bucket", "forecasts")
	v.SetDefault("sink.influxdb.timeout", 30*time.Second)

	m := metrics.DefaultPrometheusConfig()
	v.SetDefault("metrics.enabled", m.Enabled)
	v.SetDefault("metrics.path", m.Path)
	v.SetDefault("metrics.namespace", m.Namespace)
	v.SetDefault("metrics.subsystem", m.Subsystem)

	t := tracing.DefaultConfig()
	v.SetDefault("tracing.enabled", t.Enabled)
	v.SetDefault("tracing.service_name", t.ServiceName)
	v.SetDefault("tracing.service_version", t.ServiceVersion)
	v.SetDefault("tracing.environment", t.Environment)
	v.SetDefault("tracing.collector_endpoint", t.CollectorEndpoint)
	v.SetDefault("tracing.collector_insecure", t.CollectorInsecure)
	v.SetDefault("tracing.sampling_rate", t.SamplingRate)
}

// Load reads cfgFile when set, otherwise looks for salesforecast.yaml in
// the working directory and /etc/salesforecast. A missing file is not an
// error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(constants.AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/" + constants.AppName)
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return nil, errors.NewConfigurationError(fmt.Sprintf("error reading config file %q", cfgFile)).
				WithDetails(err.Error())
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.NewConfigurationError("error unmarshaling config").WithDetails(err.Error())
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	config := &Config{}
	// Defaults always decode.
	_ = v.Unmarshal(config)
	return config
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.NewConfigurationError(fmt.Sprintf("invalid port: %d", c.Server.Port))
	}
	switch c.Dataset.Source {
	case SourceCSV:
		if c.Dataset.Path == "" {
			return errors.NewConfigurationError("dataset.path is required for the csv source")
		}
	case SourcePostgres:
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown dataset source %q", c.Dataset.Source))
	}
	switch c.KPI.Cache {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return errors.NewConfigurationError(fmt.Sprintf("unknown kpi cache %q", c.KPI.Cache))
	}
	if c.Forecast.MaxHorizon < 1 {
		return errors.NewConfigurationError("forecast.max_horizon must be positive")
	}
	if c.KPI.Workers < 1 {
		return errors.NewConfigurationError("kpi.workers must be positive")
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMinute < 1 {
		return errors.NewConfigurationError("server.rate_limit.requests_per_minute must be positive")
	}
	if c.Artifacts.SyncOnStart && c.Artifacts.S3.Bucket == "" {
		return errors.NewConfigurationError("artifacts.s3.bucket is required when sync_on_start is set")
	}
	return nil
}
