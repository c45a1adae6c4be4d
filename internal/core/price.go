// Package core holds the dinner ledger model and the pure derivations over
// it: monthly per-person totals and itemised history.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice parses a user-entered per-person price.
//
// Both dot (12.5) and comma (12,5) decimal separators are accepted. Signs,
// exponents, zero and anything non-numeric are rejected with ErrInvalidPrice
// rather than coerced, so a typo never turns into a silent zero.
//
// Examples:
//
//	ParsePrice("9")     -> 9, nil
//	ParsePrice("12,50") -> 12.5, nil
//	ParsePrice("abc")   -> ErrInvalidPrice
func ParsePrice(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidPrice
	}
	s = strings.ReplaceAll(s, ",", ".")
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return decimal.Zero, ErrInvalidPrice
		}
	}
	if strings.Count(s, ".") > 1 || s == "." {
		return decimal.Zero, ErrInvalidPrice
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidPrice
	}
	return d, nil
}

// MustPrice is ParsePrice for literals known to be valid.
func MustPrice(s string) decimal.Decimal {
	d, err := ParsePrice(s)
	if err != nil {
		panic("core: invalid price literal " + s)
	}
	return d
}
