package features

import (
	"math"
	"time"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// WeeklyLags are the lag offsets of the weekly model.
var WeeklyLags = []int{1, 2, 3, 4, 8}

// WeeklyColumns is the weekly scaler column order; y is an input column.
var WeeklyColumns = []string{
	"y", "Year", "Week", "Week_sin", "Week_cos",
	"lag_1", "lag_2", "lag_3", "lag_4", "lag_8",
	"ma_3", "ma_4",
}

// WeeklyTargetColumn is the position of y in WeeklyColumns.
const WeeklyTargetColumn = 0

// weeklyWarmup is the number of leading weeks without lag_8.
const weeklyWarmup = 8

// WeeklyRow is one week's feature vector.
type WeeklyRow struct {
	Period  time.Time
	Y       float64
	Year    int
	Week    int
	WeekSin float64
	WeekCos float64
	Lag1    float64
	Lag2    float64
	Lag3    float64
	Lag4    float64
	Lag8    float64
	MA3     float64
	MA4     float64
}

// Value implements Valuer.
func (r WeeklyRow) Value(column string) (float64, bool) {
	switch column {
	case "y":
		return r.Y, true
	case "Year":
		return float64(r.Year), true
	case "Week":
		return float64(r.Week), true
	case "Week_sin":
		return r.WeekSin, true
	case "Week_cos":
		return r.WeekCos, true
	case "lag_1":
		return r.Lag1, true
	case "lag_2":
		return r.Lag2, true
	case "lag_3":
		return r.Lag3, true
	case "lag_4":
		return r.Lag4, true
	case "lag_8":
		return r.Lag8, true
	case "ma_3":
		return r.MA3, true
	case "ma_4":
		return r.MA4, true
	}
	return 0, false
}

// BuildWeekly derives a feature row for every week with a defined lag_8;
// the first eight weeks are dropped.
func BuildWeekly(series *models.Series) ([]WeeklyRow, error) {
	y := series.Quantities()
	if len(y) <= weeklyWarmup {
		return nil, errors.NewInsufficientHistoryError(len(y), weeklyWarmup+1)
	}

	rows := make([]WeeklyRow, 0, len(y)-weeklyWarmup)
	for t := weeklyWarmup; t < len(y); t++ {
		rows = append(rows, weeklyRow(series.Points[t].PeriodStart, y[:t+1]))
	}
	return rows, nil
}

// NextWeeklyRow builds the row for period whose target is the last value
// of history. Lags and moving averages come from the values before it.
func NextWeeklyRow(history []float64, period time.Time) WeeklyRow {
	return weeklyRow(period, history)
}

// weeklyRow builds the row whose y is the last element of history. Short
// histories reuse the oldest available value.
func weeklyRow(period time.Time, history []float64) WeeklyRow {
	n := len(history)
	back := func(i int) float64 {
		if n-1-i < 0 {
			return history[0]
		}
		return history[n-1-i]
	}
	_, week := period.ISOWeek()
	sin, cos := WeekCyclic(week)
	return WeeklyRow{
		Period:  period,
		Y:       history[n-1],
		Year:    period.Year(),
		Week:    week,
		WeekSin: sin,
		WeekCos: cos,
		Lag1:    back(1),
		Lag2:    back(2),
		Lag3:    back(3),
		Lag4:    back(4),
		Lag8:    back(8),
		MA3:     trailingMean(history, 3),
		MA4:     trailingMean(history, 4),
	}
}

// WeekCyclic encodes an ISO week on the unit circle.
func WeekCyclic(week int) (sin, cos float64) {
	angle := 2 * math.Pi * float64(week) / constants.WeeksPerYear
	return math.Sin(angle), math.Cos(angle)
}

func trailingMean(values []float64, w int) float64 {
	if len(values) < w {
		return mean(values)
	}
	return mean(values[len(values)-w:])
}
