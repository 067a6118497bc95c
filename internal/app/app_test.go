package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/internal/config"
	"github.com/inferloop/salesforecast/internal/observability/health"
	"github.com/inferloop/salesforecast/internal/testutil"
	"github.com/inferloop/salesforecast/pkg/models"
)

func testConfig(t *testing.T, env *testutil.TestEnvironment) *config.Config {
	t.Helper()
	cfg := config.Default()

	txs := testutil.MonthlyTransactions("Rifle X", testutil.MonthStart(2023, time.January), testutil.RifleXQuantities)
	cfg.Dataset.Path = testutil.WriteCSV(t, env.TempDir, "sales.csv", txs)

	modelPath, scalerPath := testutil.WriteMonthlyArtifacts(t, env.TempDir, testutil.MonthlyArtifactOptions{FeatureCols: true})
	cfg.Artifacts.Monthly.ModelPath = modelPath
	cfg.Artifacts.Monthly.ScalerPath = scalerPath
	cfg.Artifacts.WeeklyDir = filepath.Join(env.TempDir, "weekly")
	return cfg
}

func TestNewWiresComponents(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)

	a, err := New(env.Context, cfg, env.Logger, Options{})
	require.NoError(t, err)
	defer a.Close(env.Context)

	assert.Equal(t, []string{"Rifle X"}, a.Store.Products())
	assert.True(t, a.Monthly.Loaded())
	assert.NotNil(t, a.Metrics)
	assert.Nil(t, a.Sink)

	units, err := a.Forecaster.Forecast(env.Context, a.Store.Transactions(), "Rifle X", 3, models.Scenario{})
	require.NoError(t, err)
	assert.Len(t, units, 3)

	totals, err := a.KPI.CachedTotals(env.Context, a.Store.Version(), a.Store.Transactions(), a.Store.Products(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, totals.Horizon)

	status := a.Health.Run(env.Context)
	assert.Equal(t, health.StatusHealthy, status.OverallStatus)
	assert.Contains(t, status.CheckResults, "artifacts")
	assert.Contains(t, status.CheckResults, "dataset")
}

func TestNewWithMissingArtifactsReportsUnhealthy(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.Artifacts.Monthly.ModelPath = filepath.Join(env.TempDir, "missing.json")

	a, err := New(env.Context, cfg, env.Logger, Options{})
	require.NoError(t, err)
	defer a.Close(env.Context)

	assert.False(t, a.Monthly.Loaded())
	status := a.Health.Run(env.Context)
	assert.Equal(t, health.StatusUnhealthy, status.OverallStatus)
	assert.Equal(t, []string{"artifacts"}, status.CriticalIssues)
}

func TestNewFailsWithoutDataset(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.Dataset.Path = filepath.Join(env.TempDir, "absent.csv")

	_, err := New(env.Context, cfg, env.Logger, Options{})
	require.Error(t, err)
}

func TestNewWithoutKPICache(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.KPI.Cache = config.CacheNone
	cfg.Metrics.Enabled = false

	a, err := New(env.Context, cfg, env.Logger, Options{})
	require.NoError(t, err)
	defer a.Close(env.Context)

	assert.Nil(t, a.Metrics)
	_, err = a.KPI.CachedTotals(env.Context, a.Store.Version(), a.Store.Transactions(), a.Store.Products(), 2)
	require.NoError(t, err)
}

func TestWatcherReloadsDataset(t *testing.T) {
	testutil.SkipIfShort(t)
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)
	cfg.Dataset.Debounce = 20 * time.Millisecond
	watch := true

	a, err := New(env.Context, cfg, env.Logger, Options{Watch: &watch})
	require.NoError(t, err)
	defer a.Close(env.Context)

	before := a.Store.Version()
	more := testutil.MonthlyTransactions("Pistol Y", testutil.MonthStart(2023, time.January), []int{1, 2, 3})
	tmp := testutil.WriteCSV(t, env.TempDir, "next.csv", more)
	require.NoError(t, os.Rename(tmp, cfg.Dataset.Path))

	env.WaitForCondition(func() bool { return a.Store.Version() != before }, 5*time.Second, "dataset was not reloaded")
	assert.Equal(t, []string{"Pistol Y"}, a.Store.Products())
}

func TestSyncArtifactsRequiresBucket(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	cfg := testConfig(t, env)

	_, err := SyncArtifacts(env.Context, cfg, env.Logger, nil, false)
	require.Error(t, err)

	cfg.Artifacts.SyncOnStart = true
	_, err = New(env.Context, cfg, env.Logger, Options{})
	require.Error(t, err)
}
