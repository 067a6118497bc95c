// Package features builds model input rows from aggregated series.
package features

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// MonthlyRow is one month's feature vector.
type MonthlyRow struct {
	Period   time.Time
	Y        float64
	MonthSin float64
	MonthCos float64
	Lags     []float64 // Lags[i-1] is lag i
	MA       float64
	MAWindow int
	Promo    string
	Holiday  string
}

// Lag returns the value i periods back, 1-based.
func (r MonthlyRow) Lag(i int) float64 {
	return r.Lags[i-1]
}

// Value implements Valuer.
func (r MonthlyRow) Value(column string) (float64, bool) {
	switch {
	case column == "y":
		return r.Y, true
	case column == "month_sin":
		return r.MonthSin, true
	case column == "month_cos":
		return r.MonthCos, true
	case column == MAColumn(r.MAWindow):
		return r.MA, true
	case strings.HasPrefix(column, "lag"):
		i, err := strconv.Atoi(strings.TrimPrefix(column, "lag"))
		if err != nil || i < 1 || i > len(r.Lags) {
			return 0, false
		}
		return r.Lag(i), true
	case strings.HasPrefix(column, "promo"):
		return flag(r.Promo, strings.TrimPrefix(column, "promo")), true
	case strings.HasPrefix(column, "holi"):
		return flag(r.Holiday, strings.TrimPrefix(column, "holi")), true
	}
	return 0, false
}

// MAColumn names the moving-average column for window w.
func MAColumn(w int) string {
	return "ma" + strconv.Itoa(w)
}

// MonthlyColumns is the natural input order, without y.
func MonthlyColumns(lagDepth, maWindow int) []string {
	cols := make([]string, 0, constants.MonthlyNonLagColumns+lagDepth)
	cols = append(cols, "month_sin", "month_cos")
	for i := 1; i <= lagDepth; i++ {
		cols = append(cols, fmt.Sprintf("lag%d", i))
	}
	cols = append(cols, MAColumn(maWindow))
	for _, p := range constants.PromotionClasses {
		cols = append(cols, "promo"+p)
	}
	for _, h := range constants.HolidayClasses {
		cols = append(cols, "holi"+h)
	}
	return cols
}

// BuildMonthly derives a feature row for every month whose lags and moving
// average are fully defined; the first max(lagDepth, maWindow-1) months are
// dropped.
func BuildMonthly(series *models.Series, lagDepth, maWindow int) ([]MonthlyRow, error) {
	if lagDepth < 1 || maWindow < 1 {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("lag depth %d and moving average window %d must be positive", lagDepth, maWindow))
	}
	skip := lagDepth
	if maWindow-1 > skip {
		skip = maWindow - 1
	}

	y := series.Quantities()
	if len(y) <= skip {
		return nil, errors.NewInsufficientHistoryError(len(y), skip+1)
	}

	rows := make([]MonthlyRow, 0, len(y)-skip)
	for t := skip; t < len(y); t++ {
		point := series.Points[t]
		sin, cos := MonthCyclic(point.PeriodStart.Month())
		lags := make([]float64, lagDepth)
		for i := 1; i <= lagDepth; i++ {
			lags[i-1] = y[t-i]
		}
		rows = append(rows, MonthlyRow{
			Period:   point.PeriodStart,
			Y:        y[t],
			MonthSin: sin,
			MonthCos: cos,
			Lags:     lags,
			MA:       mean(y[t-maWindow+1 : t+1]),
			MAWindow: maWindow,
			Promo:    point.PromotionMode,
			Holiday:  point.HolidayMode,
		})
	}
	return rows, nil
}

// NextMonthlyRow builds the row for period from an extended history whose
// last value is the newest prediction: lag i is the i-th most recent value,
// falling back to the newest when history is shorter. Scenario flags come
// from the caller, never from history.
func NextMonthlyRow(history []float64, period time.Time, lagDepth, maWindow int, scenario models.Scenario) MonthlyRow {
	newest := history[len(history)-1]
	lags := make([]float64, lagDepth)
	for i := 1; i <= lagDepth; i++ {
		if len(history) >= i {
			lags[i-1] = history[len(history)-i]
		} else {
			lags[i-1] = newest
		}
	}

	ma := newest
	if len(history) >= maWindow {
		ma = mean(history[len(history)-maWindow:])
	}

	sin, cos := MonthCyclic(period.Month())
	return MonthlyRow{
		Period:   period,
		Y:        newest,
		MonthSin: sin,
		MonthCos: cos,
		Lags:     lags,
		MA:       ma,
		MAWindow: maWindow,
		Promo:    scenario.Promotion,
		Holiday:  scenario.Holiday,
	}
}

// MonthCyclic encodes a month on the unit circle.
func MonthCyclic(m time.Month) (sin, cos float64) {
	angle := 2 * math.Pi * float64(m) / constants.MonthsPerYear
	return math.Sin(angle), math.Cos(angle)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// flag is 1 when code names class.
func flag(code, class string) float64 {
	if class != "" && code == class {
		return 1
	}
	return 0
}
