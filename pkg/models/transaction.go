package models

import "time"

// Transaction is one sales record after upload normalization.
type Transaction struct {
	Date          time.Time `json:"date"`
	ProductID     string    `json:"product_id"`
	ProductName   string    `json:"product_name"`
	Brand         string    `json:"brand,omitempty"`
	Category      string    `json:"category,omitempty"`
	Price         float64   `json:"price"`
	Quantity      int       `json:"quantity"`
	ProfitPerUnit *float64  `json:"profit_per_unit,omitempty"`
	ProfitTotal   *float64  `json:"profit_total,omitempty"`
	PromotionCode string    `json:"promotion_code,omitempty"`
	HolidayCode   string    `json:"holiday_code,omitempty"`
}

// Revenue returns price times quantity.
func (t Transaction) Revenue() float64 {
	return t.Price * float64(t.Quantity)
}

// FilterByProduct returns the rows whose ProductName equals name.
func FilterByProduct(txs []Transaction, name string) []Transaction {
	var out []Transaction
	for _, tx := range txs {
		if tx.ProductName == name {
			out = append(out, tx)
		}
	}
	return out
}

// Float returns a pointer to v, for optional money fields.
func Float(v float64) *float64 {
	return &v
}
