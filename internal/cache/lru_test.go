package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

func TestLRUWithTTLExpiry(t *testing.T) {
	c, err := NewLRUWithTTL[string, int](4, time.Minute)
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1)
	c.SetWithTTL("b", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok, "expired")
	v, ok = c.Get("b")
	assert.True(t, ok, "no ttl never expires")
	assert.Equal(t, 2, v)

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestLRUWithTTLEvicts(t *testing.T) {
	c, err := NewLRUWithTTL[int, int](2, 0)
	require.NoError(t, err)
	c.Set(1, 1)
	c.Set(2, 2)
	c.Get(1)
	c.Set(3, 3)

	_, ok := c.Get(2)
	assert.False(t, ok, "least recently used is evicted")
	assert.Equal(t, uint64(1), c.Stats().Evicted)
	assert.Equal(t, 2, c.Len())

	c.Delete(1)
	assert.Equal(t, 1, c.Len())
	c.Clear()
	assert.Zero(t, c.Len())
}

func TestLRUWithTTLConcurrent(t *testing.T) {
	c, err := NewLRUWithTTL[int, int](64, time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(i%32, g)
				c.Get(i % 32)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, uint64(8*200), c.Stats().Hits+c.Stats().Misses)
}

func TestMemoryKPICache(t *testing.T) {
	ctx := context.Background()
	c, err := NewMemoryKPICache(8)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, errors.ErrCacheMiss)

	totals := &models.KPITotals{Horizon: 12, TotalUnits: 100}
	require.NoError(t, c.Set(ctx, "k", totals, time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Same(t, totals, got)
}
