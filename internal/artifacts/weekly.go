package artifacts

import (
	"context"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/inferloop/salesforecast/pkg/constants"
)

// WeeklyStore loads the per-product weekly model and scaler pairs. Loaded
// bundles stay in a bounded LRU.
type WeeklyStore struct {
	dir    string
	cache  *lru.Cache[string, *Bundle]
	group  singleflight.Group
	logger *logrus.Logger
}

// NewWeeklyStore creates a store over dir holding at most size bundles.
func NewWeeklyStore(dir string, size int, logger *logrus.Logger) (*WeeklyStore, error) {
	if dir == "" {
		dir = constants.DefaultWeeklyDir
	}
	if size <= 0 {
		size = constants.DefaultWeeklyCacheSize
	}
	if logger == nil {
		logger = logrus.New()
	}
	cache, err := lru.New[string, *Bundle](size)
	if err != nil {
		return nil, err
	}
	return &WeeklyStore{dir: dir, cache: cache, logger: logger}, nil
}

// CleanProductName maps a product name to its artifact file stem.
func CleanProductName(name string) string {
	r := strings.NewReplacer(" ", "_", ".", "", "/", "", "%", "pct")
	return r.Replace(name)
}

// Paths returns the model and scaler file paths for product.
func (s *WeeklyStore) Paths(product string) (modelPath, scalerPath string) {
	clean := CleanProductName(product)
	return filepath.Join(s.dir, "model_"+clean+".json"),
		filepath.Join(s.dir, "scaler_"+clean+".json")
}

// Load returns the weekly bundle for product.
func (s *WeeklyStore) Load(ctx context.Context, product string) (*Bundle, error) {
	key := CleanProductName(product)
	if bundle, ok := s.cache.Get(key); ok {
		return bundle, nil
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		if bundle, ok := s.cache.Get(key); ok {
			return bundle, nil
		}
		modelPath, scalerPath := s.Paths(product)
		// Weekly feature rows carry fixed lags, so no lag depth is needed.
		bundle, err := LoadBundle(context.WithoutCancel(ctx), modelPath, scalerPath, 1)
		if err != nil {
			return nil, err
		}
		s.cache.Add(key, bundle)
		s.logger.WithFields(logrus.Fields{
			"product":    product,
			"model_path": modelPath,
		}).Info("Loaded weekly artifacts")
		return bundle, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Bundle), nil
}

// Len returns the number of cached bundles.
func (s *WeeklyStore) Len() int {
	return s.cache.Len()
}
