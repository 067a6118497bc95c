package forecast

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/salesforecast/internal/aggregate"
	"github.com/inferloop/salesforecast/internal/features"
	"github.com/inferloop/salesforecast/internal/observability/tracing"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// WeeklyRequest asks for a weekly forecast of one product.
type WeeklyRequest struct {
	Product string `json:"product"`
	Horizon int    `json:"horizon"`
	// TargetMonth relabels the forecast weeks from the first Monday of that
	// month. Zero keeps the weeks following the data.
	TargetMonth time.Month `json:"target_month,omitempty"`
	// Strategy is "model" (default) or "zigzag".
	Strategy string `json:"strategy,omitempty"`
}

// ForecastWeekly predicts req.Horizon weeks for a product from its weekly
// model. The zigzag strategy replaces the model only when asked for.
func (f *Forecaster) ForecastWeekly(ctx context.Context, txs []models.Transaction, req WeeklyRequest) (fc *models.Forecast, err error) {
	start := time.Now()
	steps := 0
	strategy := req.Strategy
	if strategy == "" {
		strategy = constants.StrategyModel
	}
	ctx, span := tracing.StartSpan(ctx, "forecast.weekly",
		tracing.ForecastAttributes(req.Product, string(models.GranularityWeekly), "baseline", req.Horizon)...)
	span.SetAttributes(tracing.AttrStrategy.String(strategy))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
		f.record(models.GranularityWeekly, strategy, steps, start, err)
	}()

	if err := f.validateHorizon(req.Horizon); err != nil {
		return nil, err
	}
	if req.TargetMonth < 0 || req.TargetMonth > time.December {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("target month must be 1..12, got %d", req.TargetMonth))
	}
	if strategy != constants.StrategyModel && strategy != constants.StrategyZigzag {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("unknown strategy %q", req.Strategy))
	}

	rows, err := productTransactions(txs, req.Product)
	if err != nil {
		return nil, err
	}
	series, err := aggregate.Weekly(rows)
	if err != nil {
		return nil, err
	}
	featureRows, err := features.BuildWeekly(series)
	if err != nil {
		return nil, err
	}
	if len(featureRows) < constants.WeeklySequenceLen {
		return nil, errors.NewInsufficientHistoryError(len(featureRows), constants.WeeklySequenceLen)
	}

	lastPeriod := series.Last().PeriodStart
	fc = &models.Forecast{
		Product:     req.Product,
		Granularity: models.GranularityWeekly,
		Periods:     weekLabels(lastPeriod, req.TargetMonth, req.Horizon),
		Strategy:    strategy,
	}

	var values []float64
	if strategy == constants.StrategyZigzag {
		values = f.zigzag(series, req)
	} else {
		values, err = f.weeklyModel(ctx, series, featureRows, req)
		if err != nil {
			return nil, err
		}
	}
	steps = len(values)

	fc.Units = make([]int, len(values))
	for i, v := range values {
		fc.Units[i] = toUnits(v)
	}
	fc.GeneratedAt = f.now()

	f.logger.WithFields(logrus.Fields{
		"product":  req.Product,
		"horizon":  req.Horizon,
		"strategy": strategy,
		"total":    fc.Total(),
	}).Debug("Weekly forecast complete")
	return fc, nil
}

// weeklyModel runs the sequence model over the trailing weeks. Each step
// feeds a fresh feature row for the predicted week back into the window.
func (f *Forecaster) weeklyModel(ctx context.Context, series *models.Series, rows []features.WeeklyRow, req WeeklyRequest) ([]float64, error) {
	if f.weekly == nil {
		return nil, errors.NewConfigurationError("weekly artifacts are not configured")
	}
	bundle, err := f.weekly.Load(ctx, req.Product)
	if err != nil {
		return nil, err
	}

	frame := features.Align(features.NewFrame(rows, features.WeeklyColumns), bundle.FeatureCols)
	targetColumn := features.WeeklyTargetColumn
	for i, c := range frame.Columns {
		if c == "y" {
			targetColumn = i
		}
	}

	window := lastRows(frame.Rows, constants.WeeklySequenceLen)
	history := series.Quantities()
	cursor := series.Last().PeriodStart

	out := make([]float64, 0, req.Horizon)
	for step := 0; step < req.Horizon; step++ {
		scaled, err := scaleWindow(bundle.Scaler, window, step)
		if err != nil {
			return nil, err
		}
		pred, err := f.predict(ctx, bundle.Model, scaled, step)
		if err != nil {
			return nil, err
		}
		y, err := bundle.Scaler.InverseColumn(targetColumn, pred)
		if err != nil {
			return nil, errors.NewInferenceError(step, err)
		}
		out = append(out, y)

		cursor = aggregate.NextWeek(cursor)
		history = append(history, y)
		next := features.NextWeeklyRow(history, cursor)
		nextFrame := features.Align(features.NewFrame([]features.WeeklyRow{next}, features.WeeklyColumns), bundle.FeatureCols)
		window = lastRows(append(window, nextFrame.Rows[0]), constants.WeeklySequenceLen)
	}
	return out, nil
}

func (f *Forecaster) zigzag(series *models.Series, req WeeklyRequest) []float64 {
	seed := f.config.ZigzagSeed
	if seed == 0 {
		seed = f.now().UnixNano()
	}
	f.logger.WithFields(logrus.Fields{
		"product": req.Product,
		"seed":    seed,
	}).Warn("Weekly forecast uses the zigzag strategy instead of the model")

	recent := series.Quantities()
	if len(recent) > constants.WeeklySequenceLen {
		recent = recent[len(recent)-constants.WeeklySequenceLen:]
	}
	return Zigzag(recent, req.Horizon, rand.New(rand.NewSource(seed)))
}

// weekLabels returns the Mondays labelling a weekly forecast. Without a
// target month they follow the last observed week; otherwise they start at
// the first Monday of the target month, in the next year when that month is
// not after the last observed month.
func weekLabels(last time.Time, target time.Month, horizon int) []time.Time {
	first := aggregate.NextWeek(last)
	if target != 0 {
		year := last.Year()
		if target <= last.Month() {
			year++
		}
		first = FirstMonday(year, target)
	}
	labels := make([]time.Time, horizon)
	for i := range labels {
		labels[i] = first.AddDate(0, 0, 7*i)
	}
	return labels
}

// FirstMonday returns the first Monday of a month.
func FirstMonday(year int, month time.Month) time.Time {
	day := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, 1)
	}
	return day
}
