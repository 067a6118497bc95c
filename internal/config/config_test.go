package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
)

func TestDefault(t *testing.T) {
	config := Default()

	assert.Equal(t, constants.DefaultPort, config.Server.Port)
	assert.Equal(t, SourceCSV, config.Dataset.Source)
	assert.Equal(t, constants.DefaultModelPath, config.Artifacts.Monthly.ModelPath)
	assert.Equal(t, constants.DefaultLagDepth, config.Artifacts.Monthly.DefaultLagDepth)
	assert.Equal(t, constants.MaxHorizon, config.Forecast.MaxHorizon)
	assert.Equal(t, constants.DefaultKPIWorkers, config.KPI.Workers)
	assert.Equal(t, constants.DefaultCacheTTL, config.KPI.CacheTTL)
	assert.Equal(t, CacheMemory, config.KPI.Cache)
	assert.Equal(t, "salesforecast", config.Metrics.Namespace)
	assert.False(t, config.Tracing.Enabled)
	assert.NoError(t, config.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salesforecast.yaml")
	yaml := `
server:
  port: 9000
dataset:
  path: /data/penjualan.csv
  watch: true
forecast:
  step_timeout: 2s
kpi:
  workers: 8
  cache: redis
  redis:
    addr: redis:6379
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("SALESFORECAST_SERVER_PORT", "9100")
	t.Setenv("SALESFORECAST_LOGGING_LEVEL", "debug")

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port, "environment overrides the file")
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "/data/penjualan.csv", config.Dataset.Path)
	assert.True(t, config.Dataset.Watch)
	assert.Equal(t, 2*time.Second, config.Forecast.StepTimeout)
	assert.Equal(t, 8, config.KPI.Workers)
	assert.Equal(t, CacheRedis, config.KPI.Cache)
	assert.Equal(t, "redis:6379", config.KPI.Redis.Addr)
	assert.Equal(t, constants.DefaultCacheTTL, config.KPI.CacheTTL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"source", func(c *Config) { c.Dataset.Source = "excel" }},
		{"csv path", func(c *Config) { c.Dataset.Path = "" }},
		{"cache", func(c *Config) { c.KPI.Cache = "memcached" }},
		{"horizon", func(c *Config) { c.Forecast.MaxHorizon = 0 }},
		{"workers", func(c *Config) { c.KPI.Workers = 0 }},
		{"rate", func(c *Config) { c.Server.RateLimit.RequestsPerMinute = 0 }},
		{"sync bucket", func(c *Config) { c.Artifacts.SyncOnStart = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			assert.ErrorIs(t, config.Validate(), errors.ErrInvalidConfiguration)
		})
	}
}
