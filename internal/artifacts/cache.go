package artifacts

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
)

// CacheConfig locates the monthly artifact pair.
type CacheConfig struct {
	ModelPath       string `json:"model_path" mapstructure:"model_path"`
	ScalerPath      string `json:"scaler_path" mapstructure:"scaler_path"`
	DefaultLagDepth int    `json:"default_lag_depth" mapstructure:"default_lag_depth"`
}

// DefaultCacheConfig returns the conventional artifact locations
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		ModelPath:       constants.DefaultModelPath,
		ScalerPath:      constants.DefaultScalerPath,
		DefaultLagDepth: constants.DefaultLagDepth,
	}
}

// Cache owns the monthly artifact bundle. The first Load reads both files;
// concurrent first loads share one read and later calls return the same
// bundle. A failed load is not cached.
type Cache struct {
	config *CacheConfig
	logger *logrus.Logger
	group  singleflight.Group

	mu     sync.RWMutex
	bundle *Bundle
}

// NewCache creates an empty artifact cache
func NewCache(config *CacheConfig, logger *logrus.Logger) *Cache {
	if config == nil {
		config = DefaultCacheConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Cache{config: config, logger: logger}
}

// NewStaticCache returns a cache preloaded with bundle.
func NewStaticCache(bundle *Bundle) *Cache {
	return &Cache{config: DefaultCacheConfig(), logger: logrus.New(), bundle: bundle}
}

// Load returns the bundle, reading it on first use.
func (c *Cache) Load(ctx context.Context) (*Bundle, error) {
	c.mu.RLock()
	bundle := c.bundle
	c.mu.RUnlock()
	if bundle != nil {
		return bundle, nil
	}

	result, err, _ := c.group.Do("monthly", func() (interface{}, error) {
		c.mu.RLock()
		cached := c.bundle
		c.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		// The load is shared by every waiting caller.
		start := time.Now()
		loaded, err := LoadBundle(context.WithoutCancel(ctx), c.config.ModelPath, c.config.ScalerPath, c.config.DefaultLagDepth)
		if err != nil {
			return nil, err
		}
		c.logger.WithFields(logrus.Fields{
			"model_path": c.config.ModelPath,
			"lag_depth":  loaded.LagDepth,
			"lag_source": loaded.LagSource,
			"target_log": loaded.TargetLog,
			"duration":   time.Since(start),
		}).Info("Loaded forecasting artifacts")

		c.mu.Lock()
		c.bundle = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"model_path":  c.config.ModelPath,
			"scaler_path": c.config.ScalerPath,
		}).Error("Failed to load forecasting artifacts")
		return nil, err
	}
	return result.(*Bundle), nil
}

// Loaded reports whether the bundle is in memory.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bundle != nil
}

// LoadBundle reads and resolves a model and scaler pair from disk.
func LoadBundle(ctx context.Context, modelPath, scalerPath string, defaultLag int) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model, err := LoadModel(modelPath)
	if err != nil {
		return nil, err
	}
	scalerBundle, err := LoadScalerBundle(scalerPath)
	if err != nil {
		return nil, err
	}

	bundle, err := Resolve(model, scalerBundle, defaultLag)
	if err != nil {
		return nil, errors.NewArtifactInvalidError(scalerPath, err)
	}
	return bundle, nil
}

// LoadModel reads a model file. A missing file is ErrArtifactNotFound.
func LoadModel(path string) (*SequenceRegressor, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewArtifactNotFoundError(path)
		}
		return nil, errors.NewArtifactInvalidError(path, err)
	}
	defer f.Close()

	model, err := DecodeModel(f)
	if err != nil {
		return nil, errors.NewArtifactInvalidError(path, err)
	}
	return model, nil
}

// LoadScalerBundle reads a scaler file. A missing file is ErrArtifactNotFound.
func LoadScalerBundle(path string) (ScalerBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewArtifactNotFoundError(path)
		}
		return nil, errors.NewArtifactInvalidError(path, err)
	}
	bundle, err := DecodeScalerBundle(data)
	if err != nil {
		return nil, errors.NewArtifactInvalidError(path, err)
	}
	return bundle, nil
}
