// Package aggregate turns per-transaction rows into gap-free monthly or
// weekly series with per-period modal promotion and holiday codes.
package aggregate

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/inferloop/salesforecast/pkg/errors"
	"github.com/inferloop/salesforecast/pkg/models"
)

// MonthStart returns the first day of t's month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// WeekEnding returns the Monday closing t's Tue..Mon week; a Monday is its
// own label.
func WeekEnding(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	ahead := (int(time.Monday) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, ahead)
}

// NextMonth returns the period after a month label.
func NextMonth(t time.Time) time.Time {
	return t.AddDate(0, 1, 0)
}

// NextWeek returns the period after a week label.
func NextWeek(t time.Time) time.Time {
	return t.AddDate(0, 0, 7)
}

// Monthly resamples txs to month starts.
func Monthly(txs []models.Transaction) (*models.Series, error) {
	return resample(txs, models.GranularityMonthly, MonthStart, NextMonth)
}

// Weekly resamples txs to week-ending Mondays.
func Weekly(txs []models.Transaction) (*models.Series, error) {
	return resample(txs, models.GranularityWeekly, WeekEnding, NextWeek)
}

type period struct {
	quantity float64
	promo    *modeCounter
	holiday  *modeCounter
}

func resample(txs []models.Transaction, granularity models.Granularity,
	label func(time.Time) time.Time, next func(time.Time) time.Time) (*models.Series, error) {
	if len(txs) == 0 {
		return nil, errors.NewEmptyInputError("")
	}

	sorted := make([]models.Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	periods := make(map[time.Time]*period)
	for _, tx := range sorted {
		key := label(tx.Date)
		p, ok := periods[key]
		if !ok {
			p = &period{promo: newModeCounter(), holiday: newModeCounter()}
			periods[key] = p
		}
		p.quantity += float64(tx.Quantity)
		p.promo.add(NormalizeCode(tx.PromotionCode))
		p.holiday.add(NormalizeCode(tx.HolidayCode))
	}

	first := label(sorted[0].Date)
	last := label(sorted[len(sorted)-1].Date)

	series := &models.Series{
		Product:     sorted[0].ProductName,
		Granularity: granularity,
	}
	for cur := first; !cur.After(last); cur = next(cur) {
		point := models.SeriesPoint{PeriodStart: cur}
		if p, ok := periods[cur]; ok {
			point.Quantity = p.quantity
			point.PromotionMode = p.promo.mode()
			point.HolidayMode = p.holiday.mode()
		}
		series.Points = append(series.Points, point)
	}
	return series, nil
}

var missingMarkers = map[string]bool{
	"":     true,
	"nan":  true,
	"none": true,
	"null": true,
	"-":    true,
}

// NormalizeCode trims a promotion or holiday code and maps missing markers
// to "". Integral numbers lose their fraction, so "1.0" becomes "1".
func NormalizeCode(raw string) string {
	code := strings.TrimSpace(raw)
	if missingMarkers[strings.ToLower(code)] {
		return ""
	}
	if f, err := strconv.ParseFloat(code, 64); err == nil && math.Abs(f) < 1e15 && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strings.ToUpper(code)
}

// modeCounter tracks code frequencies in first-seen order.
type modeCounter struct {
	counts map[string]int
	order  []string
}

func newModeCounter() *modeCounter {
	return &modeCounter{counts: make(map[string]int)}
}

func (m *modeCounter) add(code string) {
	if code == "" {
		return
	}
	if _, ok := m.counts[code]; !ok {
		m.order = append(m.order, code)
	}
	m.counts[code]++
}

// mode returns the most frequent code, the earliest seen on ties.
func (m *modeCounter) mode() string {
	best, bestCount := "", 0
	for _, code := range m.order {
		if m.counts[code] > bestCount {
			best, bestCount = code, m.counts[code]
		}
	}
	return best
}
