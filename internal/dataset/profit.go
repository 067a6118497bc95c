package dataset

import "github.com/inferloop/salesforecast/pkg/models"

// NormalizeProfit fills per-unit profit when the column carries no usable
// value at all but totals exist. Each row first gets total/qty; if that
// still leaves nothing, every row gets the portfolio-wide ratio.
// The input slice is not modified.
func NormalizeProfit(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txs))
	copy(out, txs)

	if hasUnitProfit(out) || !hasTotalProfit(out) {
		return out
	}

	for i := range out {
		if out[i].ProfitTotal == nil || out[i].Quantity <= 0 {
			out[i].ProfitPerUnit = nil
			continue
		}
		out[i].ProfitPerUnit = models.Float(*out[i].ProfitTotal / float64(out[i].Quantity))
	}
	if hasUnitProfit(out) {
		return out
	}

	var profit, units float64
	for _, tx := range out {
		if tx.ProfitTotal != nil {
			profit += *tx.ProfitTotal
		}
		units += float64(tx.Quantity)
	}
	ratio := 0.0
	if units > 0 {
		ratio = profit / units
	}
	for i := range out {
		out[i].ProfitPerUnit = models.Float(ratio)
	}
	return out
}

func hasUnitProfit(txs []models.Transaction) bool {
	for _, tx := range txs {
		if tx.ProfitPerUnit != nil && *tx.ProfitPerUnit != 0 {
			return true
		}
	}
	return false
}

func hasTotalProfit(txs []models.Transaction) bool {
	for _, tx := range txs {
		if tx.ProfitTotal != nil {
			return true
		}
	}
	return false
}
