package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// RoundTo rounds half to even at the given number of decimal places.
func RoundTo(n decimal.Decimal, decimals int32) decimal.Decimal {
	return n.RoundBank(decimals)
}

// Percent returns pct/100 * amount rounded half to even at decimals places.
func Percent(amount, pct decimal.Decimal, decimals int32) decimal.Decimal {
	return RoundTo(pct.Div(decimal.NewFromInt(100)).Mul(amount), decimals)
}

// ToBaseUnits converts a natural-unit amount to an integer count of base units
// (satoshi, wei, token units), truncating anything below one unit.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

func FromBaseUnits(units *big.Int, decimals int32) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -decimals)
}
