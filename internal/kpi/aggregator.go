// Package kpi rolls per-product forecasts up into portfolio totals.
package kpi

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/inferloop/salesforecast/internal/aggregate"
	"github.com/inferloop/salesforecast/internal/observability/metrics"
	"github.com/inferloop/salesforecast/internal/observability/tracing"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/interfaces"
	"github.com/inferloop/salesforecast/pkg/models"
)

// Forecaster is the part of forecast.Forecaster the aggregator needs.
type Forecaster interface {
	ForecastSeries(ctx context.Context, txs []models.Transaction, product string, horizon int, scenario models.Scenario) (*models.Forecast, error)
}

// Config tunes KPI aggregation.
type Config struct {
	Workers  int           `json:"workers" mapstructure:"workers"`
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`
}

// DefaultConfig returns the aggregation defaults
func DefaultConfig() *Config {
	return &Config{
		Workers:  constants.DefaultKPIWorkers,
		CacheTTL: constants.DefaultCacheTTL,
	}
}

// Aggregator computes portfolio totals from per-product forecasts.
type Aggregator struct {
	forecaster Forecaster
	cache      interfaces.KPICache
	config     *Config
	logger     *logrus.Logger
	metrics    *metrics.PrometheusMetrics
	now        func() time.Time
}

// NewAggregator creates an aggregator. cache may be nil.
func NewAggregator(forecaster Forecaster, cache interfaces.KPICache, config *Config, logger *logrus.Logger) *Aggregator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers < 1 {
		config.Workers = constants.DefaultKPIWorkers
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Aggregator{
		forecaster: forecaster,
		cache:      cache,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// WithMetrics records per-product outcomes and cache lookups into pm.
func (a *Aggregator) WithMetrics(pm *metrics.PrometheusMetrics) *Aggregator {
	a.metrics = pm
	return a
}

// productResult is one product's forecast or the reason it was skipped.
type productResult struct {
	product  string
	forecast *models.Forecast
	skipped  string
}

// forecastAll forecasts every product concurrently, at most Workers at a
// time. Results follow the order of products. A fatal error cancels the
// remaining work and is returned; any other error skips its product.
func (a *Aggregator) forecastAll(ctx context.Context, txs []models.Transaction, products []string, horizon int) ([]productResult, error) {
	results := make([]productResult, len(products))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Workers)

	for i, product := range products {
		i, product := i, product
		g.Go(func() error {
			results[i].product = product
			fc, err := a.forecaster.ForecastSeries(gctx, txs, product, horizon, models.Scenario{})
			if err == nil {
				results[i].forecast = fc
				a.metrics.RecordKPIProduct("ok")
				return nil
			}
			if errors.IsFatal(err) || ctx.Err() != nil {
				return err
			}
			results[i].skipped = err.Error()
			a.metrics.RecordKPIProduct("skipped")
			a.logger.WithError(err).WithField("product", product).Warn("Skipping product in KPI aggregation")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Totals forecasts every product over horizon months and sums units and
// profit. Products that fail are skipped and reported; missing or invalid
// artifacts fail the whole call.
func (a *Aggregator) Totals(ctx context.Context, txs []models.Transaction, products []string, horizon int) (totals *models.KPITotals, err error) {
	ctx, span := tracing.StartSpan(ctx, "kpi.totals",
		tracing.AttrProducts.Int(len(products)), tracing.AttrHorizon.Int(horizon))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	results, err := a.forecastAll(ctx, txs, products, horizon)
	if err != nil {
		return nil, err
	}

	totals = &models.KPITotals{Horizon: horizon, ComputedAt: a.now()}
	profit := 0.0
	for _, r := range results {
		if r.forecast == nil {
			totals.Skipped = append(totals.Skipped, models.SkippedProduct{Product: r.product, Reason: r.skipped})
			continue
		}
		units := r.forecast.Total()
		perUnit := UnitProfit(models.FilterByProduct(txs, r.product))
		totals.Products = append(totals.Products, models.ProductKPI{
			Product:       r.product,
			Units:         units,
			ProfitPerUnit: perUnit,
			Profit:        float64(units) * perUnit,
		})
		totals.TotalUnits += units
		profit += float64(units) * perUnit
	}
	totals.TotalProfit = int(math.RoundToEven(profit))
	span.SetAttributes(tracing.AttrSkipped.Int(len(totals.Skipped)))

	a.logger.WithFields(logrus.Fields{
		"products":     len(products),
		"skipped":      len(totals.Skipped),
		"horizon":      horizon,
		"total_units":  totals.TotalUnits,
		"total_profit": totals.TotalProfit,
	}).Info("Computed KPI totals")
	return totals, nil
}

// CachedTotals is Totals behind the KPI cache, keyed by dataset version,
// horizon and product set. Cache failures fall through to a fresh compute.
func (a *Aggregator) CachedTotals(ctx context.Context, version string, txs []models.Transaction, products []string, horizon int) (*models.KPITotals, error) {
	if a.cache == nil {
		return a.Totals(ctx, txs, products, horizon)
	}

	key := CacheKey(version, horizon, products)
	cached, err := a.cache.Get(ctx, key)
	if err == nil {
		a.metrics.RecordCacheLookup("kpi", true)
		return cached, nil
	}
	a.metrics.RecordCacheLookup("kpi", false)
	if !errors.Is(err, errors.ErrCacheMiss) {
		a.logger.WithError(err).Warn("KPI cache read failed")
	}

	totals, err := a.Totals(ctx, txs, products, horizon)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Set(ctx, key, totals, a.config.CacheTTL); err != nil {
		a.logger.WithError(err).Warn("KPI cache write failed")
	}
	return totals, nil
}

// CacheKey identifies one KPI computation.
func CacheKey(version string, horizon int, products []string) string {
	sorted := append([]string(nil), products...)
	sort.Strings(sorted)
	return fmt.Sprintf("kpi:%s:%d:%s", version, horizon, strings.Join(sorted, "|"))
}

// MonthlyOutlook sums every product's forecast per future month, ranks the
// top three months and compares the best with the historical peak of the
// last twelve months.
func (a *Aggregator) MonthlyOutlook(ctx context.Context, txs []models.Transaction, products []string, horizon int) (*models.MonthlyOutlook, error) {
	ctx, span := tracing.StartSpan(ctx, "kpi.monthly_outlook",
		tracing.AttrProducts.Int(len(products)), tracing.AttrHorizon.Int(horizon))
	defer span.End()

	results, err := a.forecastAll(ctx, txs, products, horizon)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	outlook := &models.MonthlyOutlook{Horizon: horizon}
	byMonth := make(map[time.Time]int)
	for _, r := range results {
		if r.forecast == nil {
			outlook.Skipped = append(outlook.Skipped, models.SkippedProduct{Product: r.product, Reason: r.skipped})
			continue
		}
		for i, period := range r.forecast.Periods {
			byMonth[period] += r.forecast.Units[i]
		}
	}

	for period, units := range byMonth {
		outlook.Months = append(outlook.Months, models.MonthlyTotal{
			Period: period,
			Units:  units,
			Event:  constants.PeakEvents[period.Month()],
		})
	}
	sort.Slice(outlook.Months, func(i, j int) bool {
		return outlook.Months[i].Period.Before(outlook.Months[j].Period)
	})
	outlook.Peaks = topMonths(outlook.Months, 3)
	outlook.HistoricalPeak = historicalPeak(txs)
	if len(outlook.Peaks) > 0 && outlook.HistoricalPeak != nil {
		outlook.PeakAligned = outlook.Peaks[0].Period.Month() == outlook.HistoricalPeak.Period.Month()
	}
	return outlook, nil
}

// topMonths returns the n largest months, earlier months first on ties.
func topMonths(months []models.MonthlyTotal, n int) []models.MonthlyTotal {
	ranked := append([]models.MonthlyTotal(nil), months...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Units > ranked[j].Units
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// historicalPeak is the best portfolio month among the last twelve.
func historicalPeak(txs []models.Transaction) *models.MonthlyTotal {
	series, err := aggregate.Monthly(txs)
	if err != nil {
		return nil
	}
	points := series.Points
	if len(points) > constants.MonthsPerYear {
		points = points[len(points)-constants.MonthsPerYear:]
	}
	var best *models.MonthlyTotal
	for _, p := range points {
		if best == nil || int(p.Quantity) > best.Units {
			best = &models.MonthlyTotal{
				Period: p.PeriodStart,
				Units:  int(p.Quantity),
				Event:  constants.PeakEvents[p.PeriodStart.Month()],
			}
		}
	}
	return best
}
