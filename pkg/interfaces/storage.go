package interfaces

import (
	"context"
	"time"

	"github.com/inferloop/salesforecast/pkg/models"
)

// TransactionSource loads normalized sales records.
type TransactionSource interface {
	// Load reads every parseable transaction
	Load(ctx context.Context) ([]models.Transaction, error)

	// Name identifies the source in logs
	Name() string
}

// ForecastSink persists forecasts for downstream dashboards.
type ForecastSink interface {
	// WriteForecast stores one forecast series
	WriteForecast(ctx context.Context, forecast *models.Forecast) error

	// Close flushes and releases the connection
	Close() error
}

// KPICache stores portfolio totals between requests.
type KPICache interface {
	// Get returns cached totals, or errors.ErrCacheMiss
	Get(ctx context.Context, key string) (*models.KPITotals, error)

	// Set stores totals for ttl
	Set(ctx context.Context, key string, totals *models.KPITotals, ttl time.Duration) error

	// Close releases the cache
	Close() error
}
