package kpi

import (
	"math"
	"sort"

	"github.com/inferloop/salesforecast/pkg/models"
)

// UnitProfit is the per-unit profit used to value a product's forecast: the
// median recorded per-unit profit, else total profit over total quantity
// when both are positive, else 0.
func UnitProfit(txs []models.Transaction) float64 {
	var perUnit []float64
	totalProfit, totalUnits := 0.0, 0
	for _, tx := range txs {
		if tx.ProfitPerUnit != nil && !math.IsNaN(*tx.ProfitPerUnit) {
			perUnit = append(perUnit, *tx.ProfitPerUnit)
		}
		if tx.ProfitTotal != nil && !math.IsNaN(*tx.ProfitTotal) {
			totalProfit += *tx.ProfitTotal
		}
		totalUnits += tx.Quantity
	}

	if m := median(perUnit); m != 0 {
		return m
	}
	if totalUnits > 0 && totalProfit > 0 {
		return totalProfit / float64(totalUnits)
	}
	return 0
}

// median averages the two middle values of an even-length sample.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
