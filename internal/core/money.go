// Package core holds the domain types for the inventory and sales tracker:
// products, categories, sale records, money handling, and the monthly sales
// aggregation.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToCents converts a decimal price string to cents.
//
// Both dot (12.34) and comma (12,34) separators are accepted; a third decimal
// digit rounds half-up. Only positive amounts are valid.
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	cents := iv*100 + fracCents
	if cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// Mul returns the money value for count units at this unit price.
func (m Money) Mul(count int64) Money {
	return Money{Cents: m.Cents * count}
}

// Add returns the sum of two amounts.
func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// Float returns the decimal value for display. Use cents for calculations.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// String formats the amount as a dollar string, e.g. "$12.34".
func (m Money) String() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if neg {
		return "-$" + s
	}
	return "$" + s
}
