package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// RoundCurrency fixes an amount to two decimal places, half away from zero.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MinorUnits converts a two-decimal amount to integer cents.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
