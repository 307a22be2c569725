package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"100000", "USD", "$100,000.00"},
		{"1234.567", "USD", "$1,234.57"},
		{"-25.5", "USD", "-$25.50"},
		{"10", "ZZZ", "10.00 ZZZ"},
	}

	for _, tt := range tests {
		got := formatMoney(decimal.RequireFromString(tt.amount), tt.currency)
		assert.Equal(t, tt.want, got, tt.amount)
	}
}

func TestFormatSignedMoney(t *testing.T) {
	assert.Equal(t, "+$100.00", formatSignedMoney(decimal.NewFromInt(100), "USD"))
	assert.Equal(t, "$0.00", formatSignedMoney(decimal.Zero, "USD"))
}

func TestFormatPct(t *testing.T) {
	assert.Equal(t, "+1.50%", formatPct(decimal.RequireFromString("1.5")))
	assert.Equal(t, "-0.25%", formatPct(decimal.RequireFromString("-0.25")))
}

func TestStaticPrices(t *testing.T) {
	prices := staticPrices(map[string]float64{"aapl": 150.25})
	assert.True(t, prices["aapl"].Equal(decimal.RequireFromString("150.25")))
}
