package economy

import "golang.org/x/exp/constraints"

// Number is any integer or floating-point type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Clamp bounds v to [lo, hi].
func Clamp[T Number](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AtLeast returns v, or floor if v is below it.
func AtLeast[T Number](v, floor T) T {
	if v < floor {
		return floor
	}
	return v
}

// AtMost returns v, or ceiling if v is above it.
func AtMost[T Number](v, ceiling T) T {
	if v > ceiling {
		return ceiling
	}
	return v
}

// Draw removes up to amount from balance and returns what was actually taken
// along with the remaining balance. Neither value is ever negative.
func Draw(balance, amount float64) (taken, remaining float64) {
	if amount <= 0 || balance <= 0 {
		return 0, AtLeast(balance, 0)
	}
	taken = AtMost(amount, balance)
	return taken, balance - taken
}
