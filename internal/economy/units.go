package economy

import "math"

// UnitsPerToken is the ledger resolution: one token is a million base units.
const UnitsPerToken = 1_000_000

// Units is an exact token amount in base units. Ledgers that must reconcile
// to the unit accumulate Units instead of float64 tokens; sums and
// differences of Units never drift.
type Units int64

// ToUnits converts a non-negative token amount to base units, rounding down
// so the result never exceeds the amount. Negative or NaN amounts yield 0 and
// amounts past the int64 range saturate.
func ToUnits(tokens float64) Units {
	if !(tokens > 0) {
		return 0
	}
	v := math.Floor(tokens * UnitsPerToken)
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return Units(v)
}

// Tokens returns u as a token amount.
func (u Units) Tokens() float64 {
	return float64(u) / UnitsPerToken
}
