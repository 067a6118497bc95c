package main

import (
	"context"
	"time"

	"github.com/inferloop/salesforecast/internal/app"
	"github.com/inferloop/salesforecast/internal/forecast"
	"github.com/inferloop/salesforecast/pkg/models"
)

// Pipeline is the work a scheduled run performs.
type Pipeline interface {
	Reload(ctx context.Context) error
	Products() []string
	// CanExport reports whether a forecast sink is connected.
	CanExport() bool
	Export(ctx context.Context, product string, granularity models.Granularity, horizon int) (int, error)
	RefreshKPI(ctx context.Context, horizon int) (*models.KPITotals, error)
}

type appPipeline struct {
	app *app.App
}

func (p *appPipeline) Reload(ctx context.Context) error {
	return p.app.ReloadDataset(ctx)
}

func (p *appPipeline) Products() []string {
	return p.app.Store.Products()
}

func (p *appPipeline) CanExport() bool {
	return p.app.Sink != nil
}

// Export forecasts one product and writes it to the sink.
func (p *appPipeline) Export(ctx context.Context, product string, granularity models.Granularity, horizon int) (int, error) {
	txs := p.app.Store.Transactions()

	var (
		fc  *models.Forecast
		err error
	)
	if granularity == models.GranularityWeekly {
		fc, err = p.app.Forecaster.ForecastWeekly(ctx, txs, forecast.WeeklyRequest{Product: product, Horizon: horizon})
	} else {
		fc, err = p.app.Forecaster.ForecastSeries(ctx, txs, product, horizon, models.Scenario{})
	}
	if err != nil {
		return 0, err
	}

	start := time.Now()
	err = p.app.Sink.WriteForecast(ctx, fc)
	status := "success"
	if err != nil {
		status = "error"
	}
	p.app.Metrics.RecordStorageOperation("influxdb", "write", status, time.Since(start))
	if err != nil {
		return 0, err
	}
	return len(fc.Units), nil
}

// RefreshKPI recomputes portfolio totals for the current dataset version,
// leaving them in the KPI cache for the API.
func (p *appPipeline) RefreshKPI(ctx context.Context, horizon int) (*models.KPITotals, error) {
	snap := p.app.Store.Snapshot()
	return p.app.KPI.CachedTotals(ctx, snap.Version, snap.Transactions, snap.Products, horizon)
}
