package domain

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/shopspring/decimal"
)

// AveragePricePrecision is the number of decimal places (in cents) kept for
// weighted average prices.
const AveragePricePrecision = 16

// MaxDollars bounds the magnitude DollarsToCents accepts. Beyond it a
// float64 no longer carries the third decimal place reliably.
const MaxDollars = 1e12

// DollarsToCents converts a float64 dollar amount to int64 cents.
// It validates that the input has at most 2 decimal places and returns
// an error if more precision is provided. Uses math.Round after
// multiplying by 100 to handle floating-point representation issues.
func DollarsToCents(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > MaxDollars {
		return 0, fmt.Errorf("monetary values must be at most %.0f in magnitude", MaxDollars)
	}

	// Multiply by 1000 to check for a third decimal place.
	// Round to avoid floating-point artifacts (e.g., 1.10 * 1000 = 1099.9999...).
	scaled := math.Round(f * 1000)
	if math.Mod(scaled, 10) != 0 {
		return 0, fmt.Errorf("monetary values must have at most 2 decimal places")
	}

	cents := math.Round(f * 100)
	return int64(cents), nil
}

// CentsToDollars converts an int64 cents value to a float64 dollar amount.
func CentsToDollars(c int64) float64 {
	return float64(c) / 100.0
}

// DecimalToCents rounds a dollar amount to the nearest cent.
func DecimalToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// CentsToDecimal converts cents to an exact dollar amount.
func CentsToDecimal(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// FormatCents renders cents as a fixed two-decimal dollar string.
func FormatCents(c int64) string {
	return CentsToDecimal(c).StringFixed(2)
}

// AverageToDollars converts a cents-denominated average price to dollars.
func AverageToDollars(avg decimal.Decimal) float64 {
	f, _ := avg.Shift(-2).Float64()
	return f
}

// MulCents returns qty·price, or ErrAmountOverflow when either operand is
// negative or the product does not fit in an int64.
func MulCents(qty, price int64) (int64, error) {
	if qty < 0 || price < 0 {
		return 0, fmt.Errorf("%w: negative operand %d x %d", ErrAmountOverflow, qty, price)
	}
	hi, lo := bits.Mul64(uint64(qty), uint64(price))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d x %d", ErrAmountOverflow, qty, price)
	}
	return int64(lo), nil
}

// AddCents returns a+b, or ErrAmountOverflow when the sum wraps.
func AddCents(a, b int64) (int64, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("%w: %d + %d", ErrAmountOverflow, a, b)
	}
	return sum, nil
}
