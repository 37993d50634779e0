// Package parse holds the locale-aware parsing primitives drivers and the
// orchestrator share. Every function is pure: the same input always yields
// the same output, and nothing here ever fills in a default amount or date.
package parse

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// NumberFormat describes how an institution renders numbers on screen.
type NumberFormat struct {
	// Thousands is the digit grouping separator.
	Thousands rune
	// Decimal separates the fractional part.
	Decimal rune
}

var (
	// Chilean format: $1.234.567,89
	Chilean = NumberFormat{Thousands: '.', Decimal: ','}
	// Anglo format: $1,234,567.89
	Anglo = NumberFormat{Thousands: ',', Decimal: '.'}
)

// Amount parses a displayed amount like "$1.234.567", "-$12,50" or
// "(1.200)" into an exact decimal. Currency symbols, letter codes and
// whitespace are ignored; the sign may come from a leading minus or from
// accounting parentheses. An input with no digits is an error.
func Amount(s string, format NumberFormat) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(CollapseSpace(s))
	if cleaned == "" {
		return decimal.Decimal{}, errors.New("empty amount")
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}

	var digits strings.Builder
	for _, r := range cleaned {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == format.Decimal:
			digits.WriteRune('.')
		case r == format.Thousands:
			// grouping separator, dropped
		case r == '-' && digits.Len() == 0:
			negative = true
		case r == '+' || r == '$' || unicode.IsLetter(r) || unicode.IsSpace(r):
			// currency markers like "$", "CLP" or "US$" are display noise
		default:
			return decimal.Decimal{}, fmt.Errorf("amount %q: unexpected character %q", s, r)
		}
	}
	if digits.Len() == 0 {
		return decimal.Decimal{}, fmt.Errorf("amount %q: no digits", s)
	}

	value, err := decimal.NewFromString(digits.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	if negative {
		value = value.Neg()
	}
	return value, nil
}

// Date tries each layout in order and returns the first match, interpreted
// in loc (UTC when nil). Matching is exact: a date that fits none of the
// layouts is an error, never a zero time.
func Date(s string, layouts []string, loc *time.Location) (time.Time, error) {
	cleaned := strings.TrimSpace(CollapseSpace(s))
	if cleaned == "" {
		return time.Time{}, errors.New("empty date")
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, cleaned, loc)
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q matches no known layout %v", s, layouts)
}

// CollapseSpace rewrites exotic unicode spaces (NBSP and friends, common in
// bank markup) to plain spaces and collapses runs of whitespace into one.
func CollapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteRune(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
