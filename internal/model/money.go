package model

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultMinorUnit is assumed when a Store API payload omits currency_minor_unit.
const DefaultMinorUnit = 2

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// rangeSeparators split the price ranges WPGraphQL renders for variable
// products: en dash, em dash and a spaced hyphen.
var rangeSeparators = []string{"\u2013", "\u2014", " - "}

// ParseFormatted converts a display-formatted money string to a decimal.
// WPGraphQL returns prices such as "GH₵1,050.00", or "$21.00 – $30.00" for
// variable products, where the lower bound is taken. Everything except
// digits, dots and minus signs is then stripped.
// Examples: "$99.00" → 99, "1,234.56" → 1234.56, "$21.00 – $30.00" → 21, "" → 0
func ParseFormatted(s string) decimal.Decimal {
	for _, sep := range rangeSeparators {
		if low, _, ok := strings.Cut(s, sep); ok {
			s = low
		}
	}
	cleaned := nonNumeric.ReplaceAllString(s, "")
	if cleaned == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FromMinorUnits converts an amount in minor units to major units.
// WooCommerce Store API uses this format for all price fields.
// Examples: ("1050", 2) → 10.5, ("2100", 2) → 21, ("500", 0) → 500, ("", 2) → 0
func FromMinorUnits(s string, minorUnit int) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if minorUnit < 0 {
		minorUnit = DefaultMinorUnit
	}
	return d.Shift(int32(-minorUnit))
}

// ParseCurrency returns the ISO 4217 unit for code, or false when the code is
// empty or unknown.
func ParseCurrency(code string) (currency.Unit, bool) {
	if code == "" {
		return currency.Unit{}, false
	}
	u, err := currency.ParseISO(code)
	if err != nil {
		return currency.Unit{}, false
	}
	return u, true
}
