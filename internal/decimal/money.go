package decimal

import (
	"github.com/shopspring/decimal"
)

// Places is the number of fraction digits used for every monetary amount
const Places = 2

// Zero is decimal zero
var Zero = decimal.Zero

// Tolerance is the largest accepted difference between two money amounts
// that should be equal (one fils / cent)
var Tolerance = decimal.New(1, -Places)

// Round rounds to 2 places, ties away from zero (half-up for positive amounts)
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// Format renders an amount with exactly 2 fraction digits
func Format(d decimal.Decimal) string {
	return d.StringFixed(Places)
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// WithinTolerance reports whether |a-b| <= Tolerance
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// IsPositive returns true if decimal is greater than zero
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(Zero)
}

// IsNonNegative returns true if decimal is >= zero
func IsNonNegative(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(Zero)
}

// Percent converts a fractional rate (0.05) to percent (5.00)
func Percent(rate decimal.Decimal) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(100))
}
