package main

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// formatMoney renders amount in currency using its symbol and minor units.
// Unknown currency codes fall back to a plain two-decimal amount.
func formatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), currency).Display()
}

// formatSignedMoney is formatMoney with an explicit plus for gains.
func formatSignedMoney(amount decimal.Decimal, currency string) string {
	if amount.IsPositive() {
		return "+" + formatMoney(amount, currency)
	}
	return formatMoney(amount, currency)
}

func formatPct(pct decimal.Decimal) string {
	sign := ""
	if pct.IsPositive() {
		sign = "+"
	}
	return fmt.Sprintf("%s%s%%", sign, pct.StringFixed(2))
}

// optional renders a nil decimal as a dash.
func optional(d *decimal.Decimal, render func(decimal.Decimal) string) string {
	if d == nil {
		return "-"
	}
	return render(*d)
}

// inCurrency binds a currency-aware formatter for use with optional.
func inCurrency(currency string, format func(decimal.Decimal, string) string) func(decimal.Decimal) string {
	return func(d decimal.Decimal) string { return format(d, currency) }
}
