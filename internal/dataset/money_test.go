package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"comma decimal with dot thousands", "1.234,56", 1234.56},
		{"dot decimal", "1234.56", 1234.56},
		{"single comma thousands", "1,234", 1234},
		{"currency prefix", "Rp 15.000", 15000},
		{"repeated dot thousands", "1.250.000", 1250000},
		{"comma decimal", "12,5", 12.5},
		{"negative thousands", "-2.500", -2500},
		{"plain integer", "42", 42},
		{"us format", "1,234,567.89", 1234567.89},
		{"two decimals", "0.75", 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMoney(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseMoneyRejectsNonNumeric(t *testing.T) {
	for _, input := range []string{"", "abc", "-", "Rp"} {
		_, err := ParseMoney(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseQuantity(t *testing.T) {
	assert.Equal(t, 3, ParseQuantity("3"))
	assert.Equal(t, 1200, ParseQuantity("1.200"))
	assert.Equal(t, 0, ParseQuantity("n/a"))
	assert.Equal(t, 0, ParseQuantity("-4"))
}

func TestParseOptionalMoney(t *testing.T) {
	assert.Nil(t, ParseOptionalMoney("  "))
	assert.Nil(t, ParseOptionalMoney("nan"))

	v := ParseOptionalMoney("250.000")
	require.NotNil(t, v)
	assert.Equal(t, 250000.0, *v)
}
