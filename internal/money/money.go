// Package money converts between the decimal-string amounts used on the
// wire and the int64 minor units stored internally. Binary floats never
// touch an amount.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/capitalpath/ledger-service/internal/domain"
)

var minorFactor = decimal.NewFromInt(100)

// ParseAmount parses a positive decimal string with at most two fractional
// digits into minor units.
func ParseAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("ParseAmount: %w", domain.ErrInvalidAmount)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("ParseAmount: more than two decimal places: %w", domain.ErrInvalidAmount)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("ParseAmount: %w", domain.ErrInvalidAmount)
	}
	minor := d.Mul(minorFactor)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("ParseAmount: %w", domain.ErrInvalidAmount)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("ParseAmount: amount out of range: %w", domain.ErrInvalidAmount)
	}
	return minor.IntPart(), nil
}

// FormatAmount renders minor units as a decimal string with two places.
func FormatAmount(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// ParsePrice parses a non-negative decimal string, kept as a decimal for
// per-unit prices and quantities (no minor-unit conversion).
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("ParsePrice: %w", domain.ErrInvalidRequest)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("ParsePrice: %w", domain.ErrInvalidRequest)
	}
	return d, nil
}
