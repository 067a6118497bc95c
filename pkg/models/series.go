package models

import "time"

// Granularity is the aggregation unit of a series.
type Granularity string

const (
	GranularityMonthly Granularity = "monthly"
	GranularityWeekly  Granularity = "weekly"
)

// SeriesPoint is one aggregated period of a product's sales.
type SeriesPoint struct {
	PeriodStart   time.Time `json:"period_start"`
	Quantity      float64   `json:"quantity"`
	PromotionMode string    `json:"promotion_mode,omitempty"`
	HolidayMode   string    `json:"holiday_mode,omitempty"`
}

// Series is a gap-free, strictly increasing run of periods.
type Series struct {
	Product     string        `json:"product"`
	Granularity Granularity   `json:"granularity"`
	Points      []SeriesPoint `json:"points"`
}

// Len returns the number of periods.
func (s *Series) Len() int {
	return len(s.Points)
}

// Last returns the final point. It panics on an empty series.
func (s *Series) Last() SeriesPoint {
	return s.Points[len(s.Points)-1]
}

// Quantities returns the per-period quantities in order.
func (s *Series) Quantities() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Quantity
	}
	return out
}
