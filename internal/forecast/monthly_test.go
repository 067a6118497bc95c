package forecast

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/internal/artifacts"
	"github.com/inferloop/salesforecast/internal/features"
	"github.com/inferloop/salesforecast/internal/testutil"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

const product = "Rifle-X"

func rifleX() []models.Transaction {
	return testutil.MonthlyTransactions(product, testutil.MonthStart(2023, time.January), testutil.RifleXQuantities)
}

// column returns the index of name in the natural monthly order with lag
// depth 4.
func column(t *testing.T, name string) int {
	t.Helper()
	for i, c := range features.MonthlyColumns(4, 3) {
		if c == name {
			return i
		}
	}
	t.Fatalf("no column %s", name)
	return -1
}

func fakeForecaster(t *testing.T, model *testutil.FakeModel, mutate func(b *artifacts.Bundle)) *Forecaster {
	t.Helper()
	bundle := &artifacts.Bundle{
		Model:     model,
		Scaler:    testutil.IdentityScaler{Columns: 15},
		LagDepth:  4,
		LagSource: artifacts.LagFromDefault,
		TargetStd: 1,
	}
	if mutate != nil {
		mutate(bundle)
	}
	return NewForecaster(artifacts.NewStaticCache(bundle), nil, nil, testutil.GetTestLogger(t))
}

func TestForecastRifleXWithArtifacts(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	modelPath, scalerPath := testutil.WriteMonthlyArtifacts(t, env.TempDir, testutil.MonthlyArtifactOptions{FeatureCols: true})
	cache := artifacts.NewCache(&artifacts.CacheConfig{ModelPath: modelPath, ScalerPath: scalerPath, DefaultLagDepth: 6}, env.Logger)
	f := NewForecaster(cache, nil, nil, env.Logger)

	units, err := f.Forecast(env.Context, rifleX(), product, 3, models.Scenario{})
	require.NoError(t, err)
	require.Len(t, units, 3)
	testutil.AssertNonNegative(t, units)

	again, err := f.Forecast(env.Context, rifleX(), product, 3, models.Scenario{})
	require.NoError(t, err)
	assert.Equal(t, units, again, "forecasts are deterministic")
}

func TestForecastHorizonLength(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	modelPath, scalerPath := testutil.WriteMonthlyArtifacts(t, env.TempDir, testutil.MonthlyArtifactOptions{NSteps: true, TargetLog: true})
	cache := artifacts.NewCache(&artifacts.CacheConfig{ModelPath: modelPath, ScalerPath: scalerPath, DefaultLagDepth: 6}, env.Logger)
	f := NewForecaster(cache, nil, nil, env.Logger)

	for _, h := range []int{1, 6, 24} {
		fc, err := f.ForecastSeries(env.Context, rifleX(), product, h, models.Scenario{Promotion: "B"})
		require.NoError(t, err)
		assert.Len(t, fc.Units, h)
		assert.Len(t, fc.Periods, h)
		testutil.AssertNonNegative(t, fc.Units)
	}
}

func TestForecastRollsLagsForward(t *testing.T) {
	lag1 := column(t, "lag1")
	model := &testutil.FakeModel{Features: 15, Fn: func(w [][]float64) (float64, error) {
		return w[0][lag1] + 1, nil
	}}
	f := fakeForecaster(t, model, nil)

	fc, err := f.ForecastSeries(context.Background(), rifleX(), product, 3, models.Scenario{})
	require.NoError(t, err)
	assert.Equal(t, []int{15, 16, 17}, fc.Units)
	assert.Equal(t, []time.Time{
		testutil.MonthStart(2024, time.January),
		testutil.MonthStart(2024, time.February),
		testutil.MonthStart(2024, time.March),
	}, fc.Periods)

	windows := model.Windows()
	require.Len(t, windows, 3)

	// last historical row, December 2023
	first := windows[0][0]
	assert.Equal(t, 14.0, first[lag1])
	assert.Equal(t, 17.0, first[column(t, "lag2")])

	// row for the predicted January
	second := windows[1][0]
	assert.Equal(t, 15.0, second[lag1])
	assert.Equal(t, 18.0, second[column(t, "lag2")])
	assert.Equal(t, 14.0, second[column(t, "lag3")])
	assert.Equal(t, 17.0, second[column(t, "lag4")])
	assert.InDelta(t, (14.0+18+15)/3, second[column(t, "ma3")], 1e-9)
	sin, cos := features.MonthCyclic(time.January)
	assert.Equal(t, sin, second[column(t, "month_sin")])
	assert.Equal(t, cos, second[column(t, "month_cos")])
}

func TestForecastScenarioFlagsOnlyInFuture(t *testing.T) {
	lag1, promoA, holi2 := column(t, "lag1"), column(t, "promoA"), column(t, "holi2")
	model := &testutil.FakeModel{Features: 15, Fn: func(w [][]float64) (float64, error) {
		return w[0][lag1] + 1 + 10*w[0][promoA], nil
	}}
	f := fakeForecaster(t, model, nil)

	txs := rifleX()
	before := append([]models.Transaction(nil), txs...)

	cmp, err := f.Simulate(context.Background(), txs, product, 3, models.Scenario{Promotion: "a", Holiday: "2.0"})
	require.NoError(t, err)
	assert.Equal(t, models.Scenario{Promotion: "A", Holiday: "2"}, cmp.Applied)
	assert.Equal(t, []int{15, 16, 17}, cmp.Baseline)
	assert.Equal(t, []int{15, 26, 37}, cmp.Scenario)
	assert.Len(t, cmp.Periods, 3)
	assert.Equal(t, before, txs, "historical rows are untouched")

	windows := model.Windows()
	require.Len(t, windows, 6)
	scenarioRun := windows[3:]
	assert.Zero(t, scenarioRun[0][0][promoA], "history keeps its own flags")
	for _, w := range scenarioRun[1:] {
		assert.Equal(t, 1.0, w[0][promoA])
		assert.Equal(t, 1.0, w[0][holi2])
	}
}

func TestForecastAlignsToFeatureCols(t *testing.T) {
	canonical := []string{"lag1", "ma3", "month_sin", "extra", "promoA"}
	model := &testutil.FakeModel{Features: len(canonical), Fn: func(w [][]float64) (float64, error) {
		return w[0][0] + 1, nil
	}}
	f := fakeForecaster(t, model, func(b *artifacts.Bundle) {
		b.FeatureCols = canonical
		b.Scaler = testutil.IdentityScaler{Columns: len(canonical)}
	})

	units, err := f.Forecast(context.Background(), rifleX(), product, 2, models.Scenario{})
	require.NoError(t, err)
	assert.Equal(t, []int{15, 16}, units)
	for _, w := range model.Windows() {
		require.Len(t, w[0], len(canonical))
		assert.Zero(t, w[0][3], "missing columns are zero")
	}
}

func TestForecastTargetTransforms(t *testing.T) {
	tests := []struct {
		name   string
		pred   float64
		mutate func(b *artifacts.Bundle)
		want   int
	}{
		{"log target", 0.2, func(b *artifacts.Bundle) {
			b.TargetLog, b.TargetMean, b.TargetStd = true, 2.5, 0.5
		}, int(math.RoundToEven(math.Expm1(2.6)))},
		{"negative clamps to zero", -3.7, nil, 0},
		{"half to even", 12.5, nil, 12},
		{"rounds", 7.6, nil, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &testutil.FakeModel{Features: 15, Fn: func([][]float64) (float64, error) { return tt.pred, nil }}
			f := fakeForecaster(t, model, tt.mutate)
			units, err := f.Forecast(context.Background(), rifleX(), product, 2, models.Scenario{})
			require.NoError(t, err)
			assert.Equal(t, []int{tt.want, tt.want}, units)
		})
	}
}

func TestForecastErrors(t *testing.T) {
	ok := &testutil.FakeModel{Features: 15}

	t.Run("no data for product", func(t *testing.T) {
		_, err := fakeForecaster(t, ok, nil).Forecast(context.Background(), rifleX(), "Unknown", 3, models.Scenario{})
		assert.ErrorIs(t, err, errors.ErrNoDataForProduct)
	})

	t.Run("invalid scenario", func(t *testing.T) {
		_, err := fakeForecaster(t, ok, nil).Forecast(context.Background(), rifleX(), product, 3, models.Scenario{Promotion: "E"})
		assert.ErrorIs(t, err, errors.ErrInvalidScenario)
		_, err = fakeForecaster(t, ok, nil).Forecast(context.Background(), rifleX(), product, 3, models.Scenario{Holiday: "5"})
		assert.ErrorIs(t, err, errors.ErrInvalidScenario)
	})

	t.Run("invalid horizon", func(t *testing.T) {
		for _, h := range []int{0, -1, 61} {
			_, err := fakeForecaster(t, ok, nil).Forecast(context.Background(), rifleX(), product, h, models.Scenario{})
			assert.ErrorIs(t, err, errors.ErrInvalidInputData)
		}
	})

	t.Run("insufficient history", func(t *testing.T) {
		short := testutil.MonthlyTransactions(product, testutil.MonthStart(2024, time.January), []int{3, 4, 5})
		_, err := fakeForecaster(t, ok, nil).Forecast(context.Background(), short, product, 3, models.Scenario{})
		assert.ErrorIs(t, err, errors.ErrInsufficientHistory)
	})

	t.Run("model failure", func(t *testing.T) {
		failing := &testutil.FakeModel{Features: 15, Fn: func([][]float64) (float64, error) {
			return 0, fmt.Errorf("shape mismatch")
		}}
		_, err := fakeForecaster(t, failing, nil).Forecast(context.Background(), rifleX(), product, 3, models.Scenario{})
		assert.ErrorIs(t, err, errors.ErrInference)
	})

	t.Run("non-finite prediction", func(t *testing.T) {
		nan := &testutil.FakeModel{Features: 15, Fn: func([][]float64) (float64, error) { return math.NaN(), nil }}
		_, err := fakeForecaster(t, nan, nil).Forecast(context.Background(), rifleX(), product, 3, models.Scenario{})
		assert.ErrorIs(t, err, errors.ErrInference)
	})

	t.Run("scaler width mismatch", func(t *testing.T) {
		wrongWidth := fakeForecaster(t, ok, func(b *artifacts.Bundle) {
			s, err := artifacts.NewStandardScaler(make([]float64, 13), make([]float64, 13))
			require.NoError(t, err)
			b.Scaler = s
		})
		_, err := wrongWidth.Forecast(context.Background(), rifleX(), product, 3, models.Scenario{})
		assert.ErrorIs(t, err, errors.ErrInference)
	})

	t.Run("missing artifacts", func(t *testing.T) {
		dir := t.TempDir()
		cache := artifacts.NewCache(&artifacts.CacheConfig{
			ModelPath:       filepath.Join(dir, "model.json"),
			ScalerPath:      filepath.Join(dir, "scaler.json"),
			DefaultLagDepth: 6,
		}, testutil.GetTestLogger(t))
		f := NewForecaster(cache, nil, nil, testutil.GetTestLogger(t))
		_, err := f.Forecast(context.Background(), rifleX(), product, 3, models.Scenario{})
		assert.ErrorIs(t, err, errors.ErrArtifactNotFound)
		assert.True(t, errors.IsFatal(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := fakeForecaster(t, ok, nil).Forecast(ctx, rifleX(), product, 3, models.Scenario{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// blockingModel waits for its context.
type blockingModel struct{}

func (blockingModel) Predict(ctx context.Context, _ [][]float64) (float64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}
func (blockingModel) WindowSize() int { return 1 }
func (blockingModel) InputSize() int  { return 15 }

func TestForecastStepTimeout(t *testing.T) {
	bundle := &artifacts.Bundle{
		Model:     blockingModel{},
		Scaler:    testutil.IdentityScaler{Columns: 15},
		LagDepth:  4,
		TargetStd: 1,
	}
	f := NewForecaster(artifacts.NewStaticCache(bundle), nil,
		&Config{MAWindow: 3, MaxHorizon: 12, StepTimeout: 20 * time.Millisecond}, testutil.GetTestLogger(t))

	_, err := f.Forecast(context.Background(), rifleX(), product, 3, models.Scenario{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInference)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNormalizeScenario(t *testing.T) {
	tests := []struct {
		in      models.Scenario
		want    models.Scenario
		wantErr bool
	}{
		{models.Scenario{}, models.Scenario{}, false},
		{models.Scenario{Promotion: "None", Holiday: "none"}, models.Scenario{}, false},
		{models.Scenario{Promotion: " c ", Holiday: "3"}, models.Scenario{Promotion: "C", Holiday: "3"}, false},
		{models.Scenario{Holiday: "4.0"}, models.Scenario{Holiday: "4"}, false},
		{models.Scenario{Promotion: "AB"}, models.Scenario{}, true},
		{models.Scenario{Holiday: "0"}, models.Scenario{}, true},
	}
	for _, tt := range tests {
		got, err := NormalizeScenario(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, errors.ErrInvalidScenario, "%+v", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
