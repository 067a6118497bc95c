package dataset

import (
	"strings"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/models"
)

// NormalizeHeader collapses internal whitespace and trims a column name.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.Join(strings.Fields(h), " ")
}

// fieldGetter returns the raw text of a named column, "" when absent.
type fieldGetter func(column string) string

// parseRecord builds a transaction from raw column text. The boolean is
// false when the row must be dropped.
func parseRecord(get fieldGetter) (models.Transaction, bool) {
	date, err := ParseDate(get(constants.ColumnDate))
	if err != nil {
		return models.Transaction{}, false
	}
	name := strings.TrimSpace(get(constants.ColumnProductName))
	if name == "" {
		return models.Transaction{}, false
	}

	tx := models.Transaction{
		Date:          date,
		ProductID:     strings.TrimSpace(get(constants.ColumnProductID)),
		ProductName:   name,
		Brand:         strings.TrimSpace(get(constants.ColumnBrand)),
		Category:      strings.TrimSpace(get(constants.ColumnCategory)),
		Quantity:      ParseQuantity(get(constants.ColumnQuantity)),
		ProfitPerUnit: ParseOptionalMoney(get(constants.ColumnProfitPerUnit)),
		ProfitTotal:   ParseOptionalMoney(get(constants.ColumnProfitTotal)),
		PromotionCode: strings.TrimSpace(get(constants.ColumnPromotion)),
		HolidayCode:   strings.TrimSpace(get(constants.ColumnHoliday)),
	}
	if price := ParseOptionalMoney(get(constants.ColumnPrice)); price != nil {
		tx.Price = *price
	}
	return tx, true
}
