// Package fee holds the protocol fee constants and the exact-decimal helpers
// the order and trade engines share.
package fee

import "github.com/shopspring/decimal"

// Rate is the protocol fee rate, applied multiplicatively before any rounding
// of the principal.
var Rate = decimal.RequireFromString("0.001")

var one = decimal.NewFromInt(1)

// Of returns the fee charged on a traded amount
func Of(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(Rate)
}

// EscrowAmount returns the funds locked for a SELL order of the given
// quantity: principal plus fee, quantity * (1 + rate).
func EscrowAmount(quantity decimal.Decimal) decimal.Decimal {
	return quantity.Mul(one.Add(Rate))
}
