package forecast

import (
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/internal/artifacts"
	"github.com/inferloop/salesforecast/internal/testutil"
	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// thirtyWeeks is one sale a day for thirty Tuesday..Monday weeks, ending on
// Monday 2024-07-29.
func thirtyWeeks() []models.Transaction {
	start := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	return testutil.DailyTransactions("Rifle X", start, 7*30, func(i int) int { return 1 + i%3 })
}

func weeklyForecaster(t *testing.T, config *Config) *Forecaster {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "weekly")
	testutil.WriteWeeklyArtifacts(t, dir, "Rifle_X")
	store, err := artifacts.NewWeeklyStore(dir, 4, testutil.GetTestLogger(t))
	require.NoError(t, err)
	return NewForecaster(nil, store, config, testutil.GetTestLogger(t))
}

func TestForecastWeeklyModel(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	f := weeklyForecaster(t, nil)

	fc, err := f.ForecastWeekly(env.Context, thirtyWeeks(), WeeklyRequest{Product: "Rifle X", Horizon: 4})
	require.NoError(t, err)
	assert.Equal(t, constants.StrategyModel, fc.Strategy)
	assert.Equal(t, models.GranularityWeekly, fc.Granularity)
	require.Len(t, fc.Units, 4)
	testutil.AssertNonNegative(t, fc.Units)
	assert.Equal(t, time.Date(2024, time.August, 5, 0, 0, 0, 0, time.UTC), fc.Periods[0])
	assert.Equal(t, time.Date(2024, time.August, 26, 0, 0, 0, 0, time.UTC), fc.Periods[3])

	again, err := f.ForecastWeekly(env.Context, thirtyWeeks(), WeeklyRequest{Product: "Rifle X", Horizon: 4})
	require.NoError(t, err)
	assert.Equal(t, fc.Units, again.Units)
}

func TestForecastWeeklyTargetMonthLabels(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	f := weeklyForecaster(t, nil)

	fc, err := f.ForecastWeekly(env.Context, thirtyWeeks(), WeeklyRequest{
		Product: "Rifle X", Horizon: 2, TargetMonth: time.March,
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		time.Date(2025, time.March, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
	}, fc.Periods)
}

func TestForecastWeeklyZigzagIsOptIn(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	f := NewForecaster(nil, nil, &Config{ZigzagSeed: 7}, env.Logger)

	req := WeeklyRequest{Product: "Rifle X", Horizon: 4, Strategy: constants.StrategyZigzag}
	a, err := f.ForecastWeekly(env.Context, thirtyWeeks(), req)
	require.NoError(t, err)
	b, err := f.ForecastWeekly(env.Context, thirtyWeeks(), req)
	require.NoError(t, err)
	assert.Equal(t, constants.StrategyZigzag, a.Strategy)
	assert.Equal(t, a.Units, b.Units, "same seed, same walk")

	// the model path never falls back to zigzag
	req.Strategy = ""
	_, err = f.ForecastWeekly(env.Context, thirtyWeeks(), req)
	assert.ErrorIs(t, err, errors.ErrInvalidConfiguration)
}

func TestForecastWeeklyErrors(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	f := weeklyForecaster(t, nil)

	_, err := f.ForecastWeekly(env.Context, thirtyWeeks(), WeeklyRequest{Product: "Rifle X", Horizon: 4, Strategy: "magic"})
	assert.ErrorIs(t, err, errors.ErrInvalidInputData)

	_, err = f.ForecastWeekly(env.Context, thirtyWeeks(), WeeklyRequest{Product: "Rifle X", Horizon: 4, TargetMonth: 13})
	assert.ErrorIs(t, err, errors.ErrInvalidInputData)

	_, err = f.ForecastWeekly(env.Context, thirtyWeeks(), WeeklyRequest{Product: "Nope", Horizon: 4})
	assert.ErrorIs(t, err, errors.ErrNoDataForProduct)

	short := testutil.DailyTransactions("Rifle X", time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), 7*15, func(int) int { return 1 })
	_, err = f.ForecastWeekly(env.Context, short, WeeklyRequest{Product: "Rifle X", Horizon: 4})
	assert.ErrorIs(t, err, errors.ErrInsufficientHistory)

	other := testutil.DailyTransactions("Pistol", time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), 7*30, func(int) int { return 1 })
	_, err = f.ForecastWeekly(env.Context, other, WeeklyRequest{Product: "Pistol", Horizon: 4})
	assert.ErrorIs(t, err, errors.ErrArtifactNotFound)
}

func TestFirstMonday(t *testing.T) {
	assert.Equal(t, time.Date(2024, time.December, 2, 0, 0, 0, 0, time.UTC), FirstMonday(2024, time.December))
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), FirstMonday(2024, time.January))
}

func TestWeekLabelsTargetMonthRollsYear(t *testing.T) {
	last := time.Date(2024, time.July, 29, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, time.December, 2, 0, 0, 0, 0, time.UTC), weekLabels(last, time.December, 1)[0])
	assert.Equal(t, time.Date(2025, time.July, 7, 0, 0, 0, 0, time.UTC), weekLabels(last, time.July, 1)[0])
}

func TestZigzagBounds(t *testing.T) {
	recent := []float64{10, 12, 8, 15, 11, 9, 14, 13, 10, 12, 16, 11}
	out := Zigzag(recent, 50, rand.New(rand.NewSource(1)))
	require.Len(t, out, 50)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, 8*0.7)
		assert.LessOrEqual(t, v, 16*1.25)
	}

	assert.Equal(t, out, Zigzag(recent, 50, rand.New(rand.NewSource(1))))
	assert.Nil(t, Zigzag(nil, 3, rand.New(rand.NewSource(1))))
	assert.Nil(t, Zigzag(recent, 0, rand.New(rand.NewSource(1))))
}
