package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"1234", 1234},
		{"1.234,56", 1234.56},
		{"1234,56", 1234.56},
		{"1,234.56", 1234.56},
		{"1.234.567", 1234567},
		{"1,234", 1234},
		{"0,125", 0.125},
		{"1,5", 1.5},
		{"12.5", 12.5},
		{"-45,10 €", -45.10},
		{"EUR 99,00", 99},
		{"(12,50)", -12.5},
		{"12,50-", -12.5},
		{"1'250.00 CHF", 1250},
		{"+3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Amount(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAmountInvalid(t *testing.T) {
	for _, in := range []string{"abc", "12x", "€", "-"} {
		_, err := Amount(in)
		assert.ErrorIs(t, err, ErrInvalidNumber, in)
	}
}

func TestDecimalKeepsPrecision(t *testing.T) {
	d, err := Decimal("0,1")
	require.NoError(t, err)
	assert.Equal(t, "0.1", d.String())
}

func TestPercent(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"19 %", 19},
		{"7,0%", 7},
		{"0.19", 19},
		{"19", 19},
		{"0", 0},
		{"0,5 %", 0.5},
	}
	for _, tt := range tests {
		got, err := Percent(tt.in)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
}

func TestDate(t *testing.T) {
	want := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"07.03.2025", "7.3.2025", "07.03.25", "7.3.25", "2025-03-07", "20250307", " 07.03.2025 "} {
		got, err := Date(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), "%s gave %s", in, got)
	}

	_, err := Date("")
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, err = Date("March 7th")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "07.03.2025", GermanDate(time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "", GermanDate(time.Time{}))
	assert.Equal(t, "1234,50", GermanAmount(1234.5))
	assert.Equal(t, "0,12", GermanAmount(0.125))

	back, err := Amount(GermanAmount(99.99))
	require.NoError(t, err)
	assert.InDelta(t, 99.99, back, 1e-9)
}
