// Package core holds the ledger domain model: records, snapshots, money,
// access scoping and the error kinds surfaced to callers.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an exact monetary amount in minor units (pence or euro cents).
// Sums accumulate in int64, so aggregation carries no floating error.
type Money struct {
	Cents int64
}

// ParseAmount parses a non-negative decimal amount string into Money.
//
// Both dot (12.34) and comma (12,34) separators are accepted; anything past
// two decimal places is rounded half-up. Signed input is rejected outright,
// including "+".
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	return Money{Cents: cents.IntPart()}, nil
}

// ParseWholeUnits parses a non-negative amount in whole units (the disbursed
// Kz figure), rounding any fractional part half-up.
func ParseWholeUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidDisbursed
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil || d.IsNegative() {
		return 0, ErrInvalidDisbursed
	}
	return d.Round(0).IntPart(), nil
}

// Add returns the sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// Decimal returns the amount as an exact two-place decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two decimal places.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
