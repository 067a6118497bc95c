package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/pkg/constants"
)

// MonthlyArtifactOptions shapes the monthly fixture pair.
type MonthlyArtifactOptions struct {
	LagDepth    int
	Plain       bool // bare scaler instead of a structured bundle
	FeatureCols bool // include feature_cols in a structured bundle
	NSteps      bool // include n_steps in a structured bundle
	TargetLog   bool
}

// MonthlyColumns is the natural monthly feature order for lag depth L.
func MonthlyColumns(lagDepth int) []string {
	cols := []string{"month_sin", "month_cos"}
	for i := 1; i <= lagDepth; i++ {
		cols = append(cols, fmt.Sprintf("lag%d", i))
	}
	cols = append(cols, "ma3", "promoA", "promoB", "promoC", "promoD", "holi1", "holi2", "holi3", "holi4")
	return cols
}

// WeeklyColumns is the weekly scaler column order.
var WeeklyColumns = []string{
	"y", "Year", "Week", "Week_sin", "Week_cos",
	"lag_1", "lag_2", "lag_3", "lag_4", "lag_8", "ma_3", "ma_4",
}

// ModelJSON builds a one-LSTM, one-dense model with constant weights.
func ModelJSON(features, window, units int, weight, outBias float64) map[string]interface{} {
	return map[string]interface{}{
		"format":   constants.ModelFormat,
		"window":   window,
		"features": features,
		"layers": []map[string]interface{}{
			{
				"type":             "lstm",
				"units":            units,
				"kernel":           constMatrix(features, 4*units, weight),
				"recurrent_kernel": constMatrix(units, 4*units, weight),
				"bias":             constVector(4*units, 0),
			},
			{
				"type":       "dense",
				"units":      1,
				"activation": "linear",
				"kernel":     constMatrix(units, 1, 0.5),
				"bias":       constVector(1, outBias),
			},
		},
	}
}

// MinMaxJSON builds a min-max scaler over width columns of [0, max].
func MinMaxJSON(maxes []float64) map[string]interface{} {
	return map[string]interface{}{
		"kind":          "minmax",
		"data_min":      constVector(len(maxes), 0),
		"data_max":      maxes,
		"feature_range": []float64{0, 1},
	}
}

// WriteMonthlyArtifacts writes a model and scaler pair into dir.
func WriteMonthlyArtifacts(t *testing.T, dir string, opts MonthlyArtifactOptions) (modelPath, scalerPath string) {
	t.Helper()
	if opts.LagDepth == 0 {
		opts.LagDepth = 4
	}
	cols := MonthlyColumns(opts.LagDepth)
	width := len(cols)

	maxes := make([]float64, width)
	for i, c := range cols {
		switch {
		case c == "month_sin" || c == "month_cos":
			maxes[i] = 1
		case strings.HasPrefix(c, "lag") || c == "ma3":
			maxes[i] = 40
		default:
			maxes[i] = 1
		}
	}

	outBias := 0.3
	if opts.TargetLog {
		outBias = 0.1
	}
	modelPath = filepath.Join(dir, "best_model_fixed.json")
	WriteJSON(t, modelPath, ModelJSON(width, 1, 3, 0.05, outBias))

	var scaler interface{} = MinMaxJSON(maxes)
	if !opts.Plain {
		bundle := map[string]interface{}{"x_scaler": scaler}
		if opts.FeatureCols {
			bundle["feature_cols"] = cols
		}
		if opts.NSteps {
			bundle["n_steps"] = opts.LagDepth
		}
		if opts.TargetLog {
			bundle["y_log"] = true
			bundle["y_mu"] = 2.5
			bundle["y_sd"] = 0.5
		}
		scaler = bundle
	}
	scalerPath = filepath.Join(dir, "scaler_bundle_LOG.json")
	WriteJSON(t, scalerPath, scaler)
	return modelPath, scalerPath
}

// WriteWeeklyArtifacts writes the weekly pair for product using the
// sanitized file stem clean.
func WriteWeeklyArtifacts(t *testing.T, dir, clean string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	maxes := []float64{40, 2030, 53, 1, 1, 40, 40, 40, 40, 40, 40, 40}
	WriteJSON(t, filepath.Join(dir, "model_"+clean+".json"),
		ModelJSON(len(WeeklyColumns), constants.WeeklySequenceLen, 4, 0.02, 0.25))
	WriteJSON(t, filepath.Join(dir, "scaler_"+clean+".json"), MinMaxJSON(maxes))
}

// WriteJSON marshals v to path.
func WriteJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func constMatrix(rows, cols int, v float64) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = constVector(cols, v)
	}
	return m
}

func constVector(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
