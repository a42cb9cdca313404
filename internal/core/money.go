// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing signed monetary amounts from the
// textual formats sources hand us and for converting them for display.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to a signed amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, an
// optional leading sign and surrounding whitespace. Thousands separators are
// not supported: "1,234.56" is rejected because it carries two separators.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("-12,34") -> -12.34, nil
//	ParseAmount("+5")     -> 5, nil
//	ParseAmount("1.2.3")  -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 || body == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(body, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	digits := 0
	for _, r := range body {
		if r == '.' {
			continue
		}
		if !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
		digits++
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AmountFromCents builds an amount from an integer number of cents, the
// representation used by the SQLite store.
func AmountFromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Cents rounds an amount half away from zero to whole cents.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

// Float returns the float64 value of an amount for display purposes.
// Use decimals for calculations to avoid floating-point precision issues.
func Float(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
