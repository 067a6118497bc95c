package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Day-first layouts are tried before ISO ones; '/' is rewritten to '-'.
var dateLayouts = []string{
	"2-1-06",
	"2-1-2006",
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2-1-2006 15:04:05",
	"2-1-2006 15:04",
}

// ParseDate parses a transaction date and truncates it to the calendar day in
// UTC. Excel serial day numbers are accepted.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		return fromExcelSerial(serial)
	}

	s = strings.ReplaceAll(s, "/", "-")
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return dayOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func fromExcelSerial(serial float64) (time.Time, error) {
	// 2958465 is 9999-12-31
	if serial < 1 || serial > 2958465 || math.IsNaN(serial) {
		return time.Time{}, fmt.Errorf("excel serial %v out of range", serial)
	}
	return excelEpoch.AddDate(0, 0, int(math.Floor(serial))), nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
