package dataset

import (
	"sort"

	"github.com/inferloop/salesforecast/pkg/models"
)

// Summarize totals each product's sales over the twelve months before the
// latest transaction. Products are ordered by total, largest first.
func Summarize(txs []models.Transaction) []models.ProductSummary {
	if len(txs) == 0 {
		return nil
	}

	latest := txs[0].Date
	for _, tx := range txs[1:] {
		if tx.Date.After(latest) {
			latest = tx.Date
		}
	}
	cutoff := latest.AddDate(0, -12, 0)

	type acc struct {
		units   int
		records int
	}
	byProduct := make(map[string]*acc)
	for _, tx := range txs {
		if tx.Date.Before(cutoff) {
			continue
		}
		a, ok := byProduct[tx.ProductName]
		if !ok {
			a = &acc{}
			byProduct[tx.ProductName] = a
		}
		a.units += tx.Quantity
		a.records++
	}

	out := make([]models.ProductSummary, 0, len(byProduct))
	for name, a := range byProduct {
		out = append(out, models.ProductSummary{
			Product:       name,
			TotalUnits:    a.units,
			MeanPerRecord: float64(a.units) / float64(a.records),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalUnits != out[j].TotalUnits {
			return out[i].TotalUnits > out[j].TotalUnits
		}
		return out[i].Product < out[j].Product
	})
	return out
}
