package cache

import (
	"context"
	"time"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// MemoryKPICache is an interfaces.KPICache backed by LRUWithTTL.
type MemoryKPICache struct {
	lru *LRUWithTTL[string, *models.KPITotals]
}

// NewMemoryKPICache creates a cache of at most size totals.
func NewMemoryKPICache(size int) (*MemoryKPICache, error) {
	if size <= 0 {
		size = constants.DefaultCacheSize
	}
	l, err := NewLRUWithTTL[string, *models.KPITotals](size, constants.DefaultCacheTTL)
	if err != nil {
		return nil, err
	}
	return &MemoryKPICache{lru: l}, nil
}

// Get implements interfaces.KPICache
func (c *MemoryKPICache) Get(ctx context.Context, key string) (*models.KPITotals, error) {
	totals, ok := c.lru.Get(key)
	if !ok {
		return nil, errors.ErrCacheMiss
	}
	return totals, nil
}

// Set implements interfaces.KPICache
func (c *MemoryKPICache) Set(ctx context.Context, key string, totals *models.KPITotals, ttl time.Duration) error {
	c.lru.SetWithTTL(key, totals, ttl)
	return nil
}

// Close implements interfaces.KPICache
func (c *MemoryKPICache) Close() error {
	c.lru.Clear()
	return nil
}

// Stats returns the underlying cache counters.
func (c *MemoryKPICache) Stats() Stats {
	return c.lru.Stats()
}
