package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/internal/testutil"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// writeConfig lays out a dataset, monthly artifacts and Rifle X weekly
// artifacts in a temp dir and returns the config file path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	txs := testutil.DailyTransactions("Rifle X", time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), 7*30,
		func(i int) int { return 1 + i%3 })
	txs = append(txs, testutil.MonthlyTransactions("Pistol", testutil.MonthStart(2023, time.August), testutil.RifleXQuantities)...)
	csvPath := testutil.WriteCSV(t, dir, "sales.csv", txs)

	modelPath, scalerPath := testutil.WriteMonthlyArtifacts(t, dir, testutil.MonthlyArtifactOptions{FeatureCols: true})
	weeklyDir := filepath.Join(dir, "weekly")
	testutil.WriteWeeklyArtifacts(t, weeklyDir, "Rifle_X")

	cfg := fmt.Sprintf(`logging:
  format: text
dataset:
  source: csv
  path: %q
artifacts:
  monthly:
    model_path: %q
    scaler_path: %q
  weekly_dir: %q
  sync_dir: %q
kpi:
  cache: memory
`, csvPath, modelPath, scalerPath, weeklyDir, dir)

	path := filepath.Join(dir, "salesforecast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestProductsCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "products", "--config", cfg, "--format", "json")
	require.NoError(t, err)

	var summary []models.ProductSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary, 2)
	assert.ElementsMatch(t, []string{"Rifle X", "Pistol"}, []string{summary[0].Product, summary[1].Product})
}

func TestForecastCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "forecast", "--config", cfg, "--product", "Pistol", "--horizon", "3", "--format", "json")
	require.NoError(t, err)

	var fc models.Forecast
	require.NoError(t, json.Unmarshal([]byte(out), &fc))
	assert.Equal(t, "Pistol", fc.Product)
	assert.Len(t, fc.Units, 3)
	assert.Len(t, fc.Periods, 3)
	testutil.AssertNonNegative(t, fc.Units)

	out, err = run(t, "forecast", "--config", cfg, "-p", "Pistol", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "period")
	assert.Contains(t, out, "Scenario: baseline")
}

func TestForecastCommandErrors(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "forecast", "--config", cfg, "--product", "Bazooka")
	assert.True(t, errors.Is(err, errors.ErrNoDataForProduct))

	_, err = run(t, "forecast", "--config", cfg, "--product", "Pistol", "--promotion", "Z")
	assert.True(t, errors.Is(err, errors.ErrInvalidScenario))

	_, err = run(t, "forecast", "--config", cfg)
	assert.Error(t, err, "product is required")

	_, err = run(t, "forecast", "--config", cfg, "--product", "Pistol", "--format", "xml")
	assert.Error(t, err)
}

func TestScenarioCommandCSV(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "scenario", "--config", cfg, "--product", "Pistol", "--horizon", "2", "--promotion", "C", "--format", "csv")
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"period", "baseline", "promoC", "delta"}, records[0])
}

func TestWeeklyCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "weekly", "--config", cfg, "--product", "Rifle X", "--horizon", "2", "--format", "json")
	require.NoError(t, err)

	var fc models.Forecast
	require.NoError(t, json.Unmarshal([]byte(out), &fc))
	assert.Equal(t, models.GranularityWeekly, fc.Granularity)
	assert.Len(t, fc.Units, 2)
	for _, p := range fc.Periods {
		assert.Equal(t, time.Monday, p.Weekday())
	}
}

func TestKPICommand(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "kpi", "--config", cfg, "--horizon", "3", "--format", "json")
	require.NoError(t, err)

	var totals models.KPITotals
	require.NoError(t, json.Unmarshal([]byte(out), &totals))
	assert.Equal(t, 3, totals.Horizon)
	assert.Equal(t, 2, len(totals.Products)+len(totals.Skipped))

	out, err = run(t, "kpi", "--config", cfg, "--horizon", "3", "--monthly", "--format", "json")
	require.NoError(t, err)

	var outlook models.MonthlyOutlook
	require.NoError(t, json.Unmarshal([]byte(out), &outlook))
	assert.Len(t, outlook.Months, 3)
	assert.LessOrEqual(t, len(outlook.Peaks), 3)
}

func TestExportDryRun(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "export", "--config", cfg, "--product", "Pistol", "--horizon", "3", "--dry-run")
	require.NoError(t, err)
	assert.NotContains(t, out, "\n\n")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "sales_forecast,"), line)
		assert.Contains(t, line, "product=Pistol")
		assert.Contains(t, line, "scenario=baseline")
	}
}

func TestExportWeeklySkipsProductsWithoutModels(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "export", "--config", cfg, "--granularity", "weekly", "--horizon", "2", "--dry-run")
	require.NoError(t, err)
	assert.NotContains(t, out, "\n\n")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Contains(t, line, `product=Rifle\ X`)
		assert.Contains(t, line, "granularity=weekly")
	}
}

func TestExportRejectsGranularity(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "export", "--config", cfg, "--granularity", "daily", "--dry-run")
	assert.Error(t, err)
}

func TestArtifactsSyncRequiresBucket(t *testing.T) {
	cfg := writeConfig(t)

	_, err := run(t, "artifacts", "sync", "--config", cfg)
	assert.Error(t, err)
}

func TestMissingConfigFile(t *testing.T) {
	_, err := run(t, "products", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.Is(err, errors.ErrInvalidConfiguration))
}
