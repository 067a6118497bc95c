package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseMoney normalizes a locale-formatted monetary string.
//
// Everything except digits, ',', '.' and '-' is stripped first. When both
// separators are present '.' groups thousands and ',' marks decimals,
// unless a '.' comes last as in "1,234,567.89". A single separator kind
// that occurs more than once is a thousands separator, as is one that
// occurs once and is followed by exactly three digits. Otherwise the
// separator is a decimal point.
func ParseMoney(raw string) (float64, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" || s == "-" {
		return 0, fmt.Errorf("no numeric content in %q", raw)
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0 && strings.LastIndex(s, ".") > strings.LastIndex(s, ","):
		s = strings.ReplaceAll(s, ",", "")
	case dots > 0 && commas > 0:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case dots > 0:
		s = resolveSeparator(s, ".", dots)
	case commas > 0:
		s = resolveSeparator(s, ",", commas)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("parse money %q: not finite", raw)
	}
	return v, nil
}

func resolveSeparator(s, sep string, count int) string {
	if count > 1 {
		return strings.ReplaceAll(s, sep, "")
	}
	idx := strings.Index(s, sep)
	if len(s)-idx-1 == 3 {
		return strings.Replace(s, sep, "", 1)
	}
	return strings.Replace(s, sep, ".", 1)
}

// ParseQuantity parses a unit count. Unparseable and negative values become
// zero, matching how uploads are coerced.
func ParseQuantity(raw string) int {
	v, err := ParseMoney(raw)
	if err != nil || v < 0 {
		return 0
	}
	return int(math.Round(v))
}

// ParseOptionalMoney returns nil for blank or unparseable values.
func ParseOptionalMoney(raw string) *float64 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := ParseMoney(raw)
	if err != nil {
		return nil
	}
	return &v
}
