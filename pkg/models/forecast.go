package models

import "time"

// Scenario holds the hypothetical future promotion and holiday classes.
// Empty strings mean no flag.
type Scenario struct {
	Promotion string `json:"promotion,omitempty"`
	Holiday   string `json:"holiday,omitempty"`
}

// IsBaseline reports whether no scenario flag is set.
func (s Scenario) IsBaseline() bool {
	return s.Promotion == "" && s.Holiday == ""
}

// Label renders the scenario for tags and logs.
func (s Scenario) Label() string {
	if s.IsBaseline() {
		return "baseline"
	}
	label := ""
	if s.Promotion != "" {
		label = "promo" + s.Promotion
	}
	if s.Holiday != "" {
		if label != "" {
			label += "+"
		}
		label += "holi" + s.Holiday
	}
	return label
}

// Forecast is an ordered run of non-negative unit predictions.
type Forecast struct {
	Product     string      `json:"product"`
	Granularity Granularity `json:"granularity"`
	Scenario    Scenario    `json:"scenario"`
	Periods     []time.Time `json:"periods"`
	Units       []int       `json:"units"`
	Strategy    string      `json:"strategy,omitempty"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Total sums the forecast units.
func (f *Forecast) Total() int {
	total := 0
	for _, u := range f.Units {
		total += u
	}
	return total
}

// ScenarioComparison pairs a baseline with a scenario over the same periods.
type ScenarioComparison struct {
	Product  string      `json:"product"`
	Periods  []time.Time `json:"periods"`
	Baseline []int       `json:"baseline"`
	Scenario []int       `json:"scenario"`
	Applied  Scenario    `json:"applied"`
}

// SkippedProduct records a product left out of portfolio totals.
type SkippedProduct struct {
	Product string `json:"product"`
	Reason  string `json:"reason"`
}

// ProductKPI is one product's contribution to portfolio totals.
type ProductKPI struct {
	Product       string  `json:"product"`
	Units         int     `json:"units"`
	ProfitPerUnit float64 `json:"profit_per_unit"`
	Profit        float64 `json:"profit"`
}

// KPITotals are portfolio-level predicted units and profit.
type KPITotals struct {
	Horizon     int              `json:"horizon"`
	TotalUnits  int              `json:"total_units"`
	TotalProfit int              `json:"total_profit"`
	Products    []ProductKPI     `json:"products"`
	Skipped     []SkippedProduct `json:"skipped,omitempty"`
	ComputedAt  time.Time        `json:"computed_at"`
}

// MonthlyTotal is the sum of all products' forecasts for one future month.
type MonthlyTotal struct {
	Period time.Time `json:"period"`
	Units  int       `json:"units"`
	Event  string    `json:"event,omitempty"`
}

// MonthlyOutlook is the portfolio forecast per future month plus peak notes.
type MonthlyOutlook struct {
	Horizon        int              `json:"horizon"`
	Months         []MonthlyTotal   `json:"months"`
	Peaks          []MonthlyTotal   `json:"peaks"`
	HistoricalPeak *MonthlyTotal    `json:"historical_peak,omitempty"`
	PeakAligned    bool             `json:"peak_aligned"`
	Skipped        []SkippedProduct `json:"skipped,omitempty"`
}

// ProductSummary is a product's recent sales summary.
type ProductSummary struct {
	Product       string  `json:"product"`
	TotalUnits    int     `json:"total_units"`
	MeanPerRecord float64 `json:"mean_per_record"`
}
