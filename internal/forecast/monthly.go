package forecast

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/internal/aggregate"
	"github.com/inferloop/salesforecast/internal/features"
	"github.com/inferloop/salesforecast/internal/observability/tracing"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/models"
)

// Forecast returns horizon monthly unit predictions for product under
// scenario, in chronological order.
func (f *Forecaster) Forecast(ctx context.Context, txs []models.Transaction, product string, horizon int, scenario models.Scenario) ([]int, error) {
	fc, err := f.ForecastSeries(ctx, txs, product, horizon, scenario)
	if err != nil {
		return nil, err
	}
	return fc.Units, nil
}

// ForecastSeries is Forecast with the predicted periods attached.
func (f *Forecaster) ForecastSeries(ctx context.Context, txs []models.Transaction, product string, horizon int, scenario models.Scenario) (fc *models.Forecast, err error) {
	start := time.Now()
	steps := 0
	ctx, span := tracing.StartSpan(ctx, "forecast.monthly",
		tracing.ForecastAttributes(product, string(models.GranularityMonthly), scenario.Label(), horizon)...)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
		f.record(models.GranularityMonthly, constants.StrategyModel, steps, start, err)
	}()

	if err := f.validateHorizon(horizon); err != nil {
		return nil, err
	}
	scenario, err = NormalizeScenario(scenario)
	if err != nil {
		return nil, err
	}
	rows, err := productTransactions(txs, product)
	if err != nil {
		return nil, err
	}

	bundle, err := f.monthly.Load(ctx)
	if err != nil {
		return nil, err
	}
	lagDepth, maWindow := bundle.LagDepth, f.config.MAWindow
	span.SetAttributes(tracing.AttrLagDepth.Int(lagDepth))

	series, err := aggregate.Monthly(rows)
	if err != nil {
		return nil, err
	}
	featureRows, err := features.BuildMonthly(series, lagDepth, maWindow)
	if err != nil {
		return nil, err
	}

	columns := features.MonthlyColumns(lagDepth, maWindow)
	frame := features.Align(features.NewFrame(featureRows, columns), bundle.FeatureCols)
	window := lastRows(frame.Rows, bundle.Model.WindowSize())

	history := series.Quantities()
	cursor := aggregate.NextMonth(series.Last().PeriodStart)

	fc = &models.Forecast{
		Product:     product,
		Granularity: models.GranularityMonthly,
		Scenario:    scenario,
		Periods:     make([]time.Time, 0, horizon),
		Units:       make([]int, 0, horizon),
		Strategy:    constants.StrategyModel,
	}
	for step := 0; step < horizon; step++ {
		scaled, err := scaleWindow(bundle.Scaler, window, step)
		if err != nil {
			return nil, err
		}
		pred, err := f.predict(ctx, bundle.Model, scaled, step)
		if err != nil {
			return nil, err
		}
		steps++

		units := toUnits(bundle.InvertTarget(pred))
		fc.Periods = append(fc.Periods, cursor)
		fc.Units = append(fc.Units, units)

		// The next input describes the month just predicted.
		history = append(history, float64(units))
		next := features.NextMonthlyRow(history, cursor, lagDepth, maWindow, scenario)
		nextFrame := features.Align(features.NewFrame([]features.MonthlyRow{next}, columns), bundle.FeatureCols)
		window = lastRows(append(window, nextFrame.Rows[0]), bundle.Model.WindowSize())

		cursor = aggregate.NextMonth(cursor)
	}
	fc.GeneratedAt = f.now()

	f.logger.WithFields(logrus.Fields{
		"product":  product,
		"horizon":  horizon,
		"scenario": scenario.Label(),
		"total":    fc.Total(),
		"duration": time.Since(start),
	}).Debug("Monthly forecast complete")
	return fc, nil
}

// Simulate forecasts product under the baseline and under scenario over the
// same periods.
func (f *Forecaster) Simulate(ctx context.Context, txs []models.Transaction, product string, horizon int, scenario models.Scenario) (*models.ScenarioComparison, error) {
	applied, err := NormalizeScenario(scenario)
	if err != nil {
		return nil, err
	}
	baseline, err := f.ForecastSeries(ctx, txs, product, horizon, models.Scenario{})
	if err != nil {
		return nil, err
	}
	withScenario, err := f.ForecastSeries(ctx, txs, product, horizon, applied)
	if err != nil {
		return nil, err
	}
	return &models.ScenarioComparison{
		Product:  product,
		Periods:  baseline.Periods,
		Baseline: baseline.Units,
		Scenario: withScenario.Units,
		Applied:  applied,
	}, nil
}
