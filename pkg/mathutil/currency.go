// Package mathutil provides common mathematical utility functions for
// currency amounts held as decimals.
package mathutil

import (
	"github.com/iwvelando/capex-depreciation/pkg/constants"
	"github.com/shopspring/decimal"
)

var (
	hundred   = decimal.NewFromInt(constants.PercentageMultiplier)
	tolerance = decimal.NewFromFloat(constants.CurrencyTolerance)
)

// Round rounds a value to two decimals, i.e. to represent real currency.
func Round(val decimal.Decimal) decimal.Decimal {
	return val.Round(constants.CurrencyPlaces)
}

// IsPositive checks if a value is positive (greater than tolerance)
func IsPositive(val decimal.Decimal) bool {
	return val.GreaterThan(tolerance)
}

// IsNegative checks if a value is negative (less than negative tolerance)
func IsNegative(val decimal.Decimal) bool {
	return val.LessThan(tolerance.Neg())
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tol decimal.Decimal) bool {
	return val1.Sub(val2).Abs().LessThanOrEqual(tol)
}

// Min returns the minimum of two values
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// FloorZero returns val, or zero when val is negative.
func FloorZero(val decimal.Decimal) decimal.Decimal {
	if val.IsNegative() {
		return decimal.Zero
	}
	return val
}

// ApplyMonthlyPercentage applies one twelfth of an annual percentage to a
// value without rounding the intermediate monthly rate.
func ApplyMonthlyPercentage(value, annualPercentage decimal.Decimal) decimal.Decimal {
	return value.Mul(annualPercentage).Div(hundred.Mul(decimal.NewFromInt(constants.MonthsPerYear)))
}
