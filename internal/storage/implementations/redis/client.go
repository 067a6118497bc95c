package redis

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// RedisConfig holds configuration for the Redis KPI cache
type RedisConfig struct {
	Addr         string        `json:"addr" mapstructure:"addr"`
	Password     string        `json:"password" mapstructure:"password"`
	DB           int           `json:"db" mapstructure:"db"`
	DialTimeout  time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	PoolSize     int           `json:"pool_size" mapstructure:"pool_size"`
	MaxRetries   int           `json:"max_retries" mapstructure:"max_retries"`
	KeyPrefix    string        `json:"key_prefix" mapstructure:"key_prefix"`
	ClusterAddrs []string      `json:"cluster_addrs" mapstructure:"cluster_addrs"`
}

// KPICache stores portfolio totals in Redis as JSON strings.
type KPICache struct {
	config *RedisConfig
	client redis.UniversalClient
	logger *logrus.Logger
	mu     sync.RWMutex
	closed bool
}

// NewKPICache validates config. Call Connect before use.
func NewKPICache(config *RedisConfig, logger *logrus.Logger) (*KPICache, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis config cannot be nil")
	}
	if config.Addr == "" && len(config.ClusterAddrs) == 0 {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis address or cluster addresses are required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &KPICache{config: config, logger: logger}, nil
}

// Connect establishes the connection and pings the server
func (r *KPICache) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil
	}

	addrs := r.config.ClusterAddrs
	if len(addrs) == 0 {
		addrs = []string{r.config.Addr}
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     r.config.Password,
		DB:           r.config.DB,
		DialTimeout:  r.config.DialTimeout,
		ReadTimeout:  r.config.ReadTimeout,
		WriteTimeout: r.config.WriteTimeout,
		PoolSize:     r.config.PoolSize,
		MaxRetries:   r.config.MaxRetries,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return errors.WrapStorageError(err, errors.CodeConnectionFailed, "Failed to connect to Redis")
	}
	r.client = client
	r.closed = false

	r.logger.WithFields(logrus.Fields{
		"addrs": addrs,
		"db":    r.config.DB,
	}).Info("Connected to Redis")
	return nil
}

// Close closes the Redis connection
func (r *KPICache) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.client == nil {
		r.closed = true
		return nil
	}

	err := r.client.Close()
	r.client = nil
	r.closed = true
	if err != nil {
		return errors.WrapStorageError(err, "CLOSE_FAILED", "Failed to close Redis connection")
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// Ping tests the Redis connection
func (r *KPICache) Ping(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	if _, err := client.Ping(ctx).Result(); err != nil {
		return errors.WrapStorageError(err, errors.CodeConnectionFailed, "Redis ping failed")
	}
	return nil
}

// Get returns the cached totals for key, or errors.ErrCacheMiss
func (r *KPICache) Get(ctx context.Context, key string) (*models.KPITotals, error) {
	client, err := r.conn()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, errors.ErrCacheMiss
	}
	if err != nil {
		return nil, errors.WrapStorageError(err, errors.CodeReadFailed, "Failed to read KPI totals")
	}

	var totals models.KPITotals
	if err := json.Unmarshal(data, &totals); err != nil {
		// A corrupt entry is treated as absent and dropped.
		r.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable KPI cache entry")
		client.Del(ctx, r.key(key))
		return nil, errors.ErrCacheMiss
	}
	return &totals, nil
}

// Set stores totals under key for ttl. A zero ttl never expires.
func (r *KPICache) Set(ctx context.Context, key string, totals *models.KPITotals, ttl time.Duration) error {
	client, err := r.conn()
	if err != nil {
		return err
	}

	data, err := json.Marshal(totals)
	if err != nil {
		return errors.WrapStorageError(err, errors.CodeWriteFailed, "Failed to encode KPI totals")
	}
	if err := client.Set(ctx, r.key(key), data, ttl).Err(); err != nil {
		return errors.WrapStorageError(err, errors.CodeWriteFailed, "Failed to write KPI totals")
	}
	return nil
}

// Invalidate removes every KPI entry under the configured prefix, used
// when the dataset changes.
func (r *KPICache) Invalidate(ctx context.Context) (int, error) {
	client, err := r.conn()
	if err != nil {
		return 0, err
	}

	removed := 0
	iter := client.Scan(ctx, 0, r.key("*"), 100).Iterator()
	for iter.Next(ctx) {
		if err := client.Del(ctx, iter.Val()).Err(); err != nil {
			return removed, errors.WrapStorageError(err, errors.CodeWriteFailed, "Failed to delete KPI entry")
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, errors.WrapStorageError(err, errors.CodeReadFailed, "Failed to scan KPI entries")
	}
	return removed, nil
}

func (r *KPICache) conn() (redis.UniversalClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed || r.client == nil {
		return nil, errors.NewStorageError(errors.CodeConnectionFailed, "Redis not connected")
	}
	return r.client, nil
}

func (r *KPICache) key(key string) string {
	if r.config.KeyPrefix == "" {
		return key
	}
	return strings.TrimSuffix(r.config.KeyPrefix, ":") + ":" + key
}
