// Package forecast runs the autoregressive monthly and weekly forecasters.
package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/internal/artifacts"
	"github.com/inferloop/salesforecast/internal/observability/metrics"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/interfaces"
	"github.com/inferloop/salesforecast/pkg/models"
)

// Config tunes the forecasters.
type Config struct {
	MAWindow    int           `json:"ma_window" mapstructure:"ma_window"`
	MaxHorizon  int           `json:"max_horizon" mapstructure:"max_horizon"`
	StepTimeout time.Duration `json:"step_timeout" mapstructure:"step_timeout"`
	ZigzagSeed  int64         `json:"zigzag_seed" mapstructure:"zigzag_seed"`
}

// DefaultConfig returns the forecaster defaults
func DefaultConfig() *Config {
	return &Config{
		MAWindow:   constants.DefaultMAWindow,
		MaxHorizon: constants.MaxHorizon,
	}
}

// Forecaster produces unit forecasts from a product's transactions using
// the monthly artifact cache and the weekly artifact store.
type Forecaster struct {
	monthly *artifacts.Cache
	weekly  *artifacts.WeeklyStore
	config  *Config
	logger  *logrus.Logger
	metrics *metrics.PrometheusMetrics
	now     func() time.Time
}

// NewForecaster wires a forecaster. weekly may be nil when weekly forecasts
// are not served.
func NewForecaster(monthly *artifacts.Cache, weekly *artifacts.WeeklyStore, config *Config, logger *logrus.Logger) *Forecaster {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MAWindow < 1 {
		config.MAWindow = constants.DefaultMAWindow
	}
	if config.MaxHorizon < 1 {
		config.MaxHorizon = constants.MaxHorizon
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Forecaster{
		monthly: monthly,
		weekly:  weekly,
		config:  config,
		logger:  logger,
		now:     time.Now,
	}
}

// WithMetrics records forecast runs into pm.
func (f *Forecaster) WithMetrics(pm *metrics.PrometheusMetrics) *Forecaster {
	f.metrics = pm
	return f
}

func (f *Forecaster) validateHorizon(horizon int) error {
	if horizon < 1 || horizon > f.config.MaxHorizon {
		return errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("horizon must be between 1 and %d, got %d", f.config.MaxHorizon, horizon))
	}
	return nil
}

// productTransactions returns the rows of product or ErrNoDataForProduct.
func productTransactions(txs []models.Transaction, product string) ([]models.Transaction, error) {
	rows := models.FilterByProduct(txs, product)
	if len(rows) == 0 {
		return nil, errors.NewNoDataForProductError(product)
	}
	return rows, nil
}

// predict runs one inference step under the per-step deadline. Parent
// cancellation is returned as is; anything else is ErrInference.
func (f *Forecaster) predict(ctx context.Context, model interfaces.SequenceModel, window [][]float64, step int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stepCtx := ctx
	if f.config.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, f.config.StepTimeout)
		defer cancel()
	}

	pred, err := model.Predict(stepCtx, window)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errors.NewInferenceError(step, err)
	}
	if math.IsNaN(pred) || math.IsInf(pred, 0) {
		return 0, errors.NewInferenceError(step, fmt.Errorf("non-finite prediction"))
	}
	return pred, nil
}

// scaleWindow scales every raw row of a window.
func scaleWindow(scaler interfaces.FeatureScaler, rows [][]float64, step int) ([][]float64, error) {
	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		s, err := scaler.Transform(row)
		if err != nil {
			return nil, errors.NewInferenceError(step, err)
		}
		scaled[i] = s
	}
	return scaled, nil
}

// toUnits clamps a prediction at zero and rounds half to even.
func toUnits(pred float64) int {
	return int(math.RoundToEven(math.Max(0, pred)))
}

// lastRows returns the trailing n rows.
func lastRows(rows [][]float64, n int) [][]float64 {
	if n > len(rows) {
		n = len(rows)
	}
	return rows[len(rows)-n:]
}

func (f *Forecaster) record(granularity models.Granularity, strategy string, steps int, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	f.metrics.RecordForecast(string(granularity), strategy, status, steps, time.Since(start))
}
