package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

func TestNewKPICache(t *testing.T) {
	config := &RedisConfig{Addr: "localhost:6379"}

	logger := logrus.New()
	cache, err := NewKPICache(config, logger)

	require.NoError(t, err)
	require.NotNil(t, cache)
	assert.Equal(t, config, cache.config)
	assert.Equal(t, logger, cache.logger)
}

func TestNewKPICacheInvalidConfig(t *testing.T) {
	_, err := NewKPICache(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	_, err = NewKPICache(&RedisConfig{}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address or cluster addresses are required")
}

func TestKPICacheKeys(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"", "kpi:v1:6:a"},
		{"salesforecast", "salesforecast:kpi:v1:6:a"},
		{"salesforecast:", "salesforecast:kpi:v1:6:a"},
	}
	for _, tt := range tests {
		cache, err := NewKPICache(&RedisConfig{Addr: "localhost:6379", KeyPrefix: tt.prefix}, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, cache.key("kpi:v1:6:a"))
	}
}

func TestKPICacheNotConnected(t *testing.T) {
	cache, err := NewKPICache(&RedisConfig{Addr: "localhost:6379"}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = cache.Get(ctx, "k")
	assert.ErrorIs(t, err, errors.ErrStorageConnectionFailed)
	assert.ErrorIs(t, cache.Set(ctx, "k", &models.KPITotals{}, time.Minute), errors.ErrStorageConnectionFailed)
	assert.NoError(t, cache.Close())
}

// Runs against a live server when REDIS_ADDR is set.
func TestKPICacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	cache, err := NewKPICache(&RedisConfig{Addr: addr, KeyPrefix: "salesforecast-test"}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, cache.Connect(ctx))
	defer cache.Close()

	_, err = cache.Get(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrCacheMiss)

	totals := &models.KPITotals{Horizon: 6, TotalUnits: 120, TotalProfit: 30000000}
	require.NoError(t, cache.Set(ctx, "kpi:v1", totals, time.Minute))

	got, err := cache.Get(ctx, "kpi:v1")
	require.NoError(t, err)
	assert.Equal(t, 120, got.TotalUnits)

	removed, err := cache.Invalidate(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 1)
}
