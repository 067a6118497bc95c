package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/models"
)

// RifleXQuantities is twelve months of sales for the reference product.
var RifleXQuantities = []int{10, 12, 9, 15, 11, 14, 13, 16, 12, 17, 14, 18}

// MonthStart returns the first day of a month in UTC.
func MonthStart(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// MonthlyTransactions splits each month's quantity across the 3rd and the
// 17th of that month.
func MonthlyTransactions(product string, start time.Time, quantities []int) []models.Transaction {
	var txs []models.Transaction
	for i, q := range quantities {
		month := start.AddDate(0, i, 0)
		first := q / 2
		txs = append(txs,
			transaction(product, month.AddDate(0, 0, 2), first),
			transaction(product, month.AddDate(0, 0, 16), q-first),
		)
	}
	return txs
}

// DailyTransactions creates one transaction per day with quantity fn(i).
func DailyTransactions(product string, start time.Time, days int, fn func(i int) int) []models.Transaction {
	txs := make([]models.Transaction, 0, days)
	for i := 0; i < days; i++ {
		txs = append(txs, transaction(product, start.AddDate(0, 0, i), fn(i)))
	}
	return txs
}

func transaction(product string, date time.Time, qty int) models.Transaction {
	return models.Transaction{
		Date:          date,
		ProductID:     "P-" + product,
		ProductName:   product,
		Brand:         "Logan",
		Category:      "Airsoft Gun",
		Price:         1500000,
		Quantity:      qty,
		ProfitPerUnit: models.Float(250000),
		ProfitTotal:   models.Float(250000 * float64(qty)),
	}
}

// WithCodes sets the promotion and holiday code on every transaction.
func WithCodes(txs []models.Transaction, promotion, holiday string) []models.Transaction {
	out := make([]models.Transaction, len(txs))
	for i, tx := range txs {
		tx.PromotionCode = promotion
		tx.HolidayCode = holiday
		out[i] = tx
	}
	return out
}

// WriteCSV writes txs with the canonical header and returns the path.
func WriteCSV(t *testing.T, dir, name string, txs []models.Transaction) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := csv.NewWriter(f)
	require.NoError(t, w.Write([]string{
		constants.ColumnDate, constants.ColumnProductID, constants.ColumnProductName,
		constants.ColumnBrand, constants.ColumnCategory, constants.ColumnPrice,
		constants.ColumnQuantity, constants.ColumnProfitPerUnit, constants.ColumnProfitTotal,
		constants.ColumnPromotion, constants.ColumnHoliday,
	}))
	for _, tx := range txs {
		require.NoError(t, w.Write([]string{
			tx.Date.Format("02-01-2006"),
			tx.ProductID,
			tx.ProductName,
			tx.Brand,
			tx.Category,
			strconv.FormatFloat(tx.Price, 'f', -1, 64),
			strconv.Itoa(tx.Quantity),
			optional(tx.ProfitPerUnit),
			optional(tx.ProfitTotal),
			tx.PromotionCode,
			tx.HolidayCode,
		}))
	}
	w.Flush()
	require.NoError(t, w.Error())
	return path
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
