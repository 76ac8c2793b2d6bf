package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	currencyPrecision = 2
	quantityPrecision = 4
)

// ParsedDecimal is the result of a lenient numeric parse.
// Defaulted is set when Raw could not be used and Value fell back to zero.
type ParsedDecimal struct {
	Value     decimal.Decimal
	Defaulted bool
	Raw       string
}

// ParseDecimal parses a string into a decimal, falling back to zero for empty,
// invalid or negative input.
func ParseDecimal(raw string) ParsedDecimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedDecimal{Value: decimal.Zero, Defaulted: true, Raw: raw}
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return ParsedDecimal{Value: decimal.Zero, Defaulted: true, Raw: raw}
	}
	return ParsedDecimal{Value: d, Raw: raw}
}

// SafeDivide divides a by b, returning zero when b is zero.
func SafeDivide(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}

// ClampZero returns d, or zero if d is negative.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// RoundCurrency rounds a money amount to cents.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(currencyPrecision)
}

// RoundQuantity rounds a coin quantity to display precision.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.Round(quantityPrecision)
}

// FormatQuantity renders a quantity with exactly four decimal places.
func FormatQuantity(d decimal.Decimal) string {
	return d.StringFixed(quantityPrecision)
}
