package server

import (
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/inferloop/salesforecast/internal/cache"
	"github.com/inferloop/salesforecast/internal/config"
)

const (
	maxTrackedClients = 10000
	idleClientTTL     = 10 * time.Minute
)

// RateLimiter keeps one token bucket per client. Idle clients age out of a
// bounded LRU so the table cannot grow without limit.
type RateLimiter struct {
	config   config.RateLimitConfig
	limiters *cache.LRUWithTTL[string, *rate.Limiter]
}

// NewRateLimiter creates a limiter from config. A disabled config allows
// everything.
func NewRateLimiter(cfg config.RateLimitConfig) (*RateLimiter, error) {
	limiters, err := cache.NewLRUWithTTL[string, *rate.Limiter](maxTrackedClients, idleClientTTL)
	if err != nil {
		return nil, err
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &RateLimiter{config: cfg, limiters: limiters}, nil
}

// Allow consumes one token for client
func (rl *RateLimiter) Allow(client string) bool {
	if !rl.config.Enabled {
		return true
	}
	limiter, ok := rl.limiters.Get(client)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(float64(rl.config.RequestsPerMinute)/60), rl.config.Burst)
	}
	// Refresh the entry so active clients keep their bucket.
	rl.limiters.Set(client, limiter)
	return limiter.Allow()
}

// Limit returns the configured requests per minute, 0 when disabled.
func (rl *RateLimiter) Limit() int {
	if !rl.config.Enabled {
		return 0
	}
	return rl.config.RequestsPerMinute
}

// RetryAfterSeconds is the time to earn one token.
func (rl *RateLimiter) RetryAfterSeconds() int {
	if rl.config.RequestsPerMinute <= 0 {
		return 60
	}
	return int(math.Ceil(60 / float64(rl.config.RequestsPerMinute)))
}
