// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents. On the wire they travel as plain
// decimal numbers in whole currency units (80, 12.5), matching how prices
// are entered and displayed.
package core

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount bounds any single price or day total: one billion units.
const MaxAmount int64 = 100_000_000_000

var maxAmountDecimal = decimal.NewFromInt(MaxAmount)

// Units returns an amount of whole currency units.
func Units(n int64) Money {
	return Money{Cents: n * 100}
}

// ParseMoney converts a decimal string to cents with half-up rounding on the
// third decimal place. Both dot (12.34) and comma (12,34) separators are
// accepted. Zero is valid; negative amounts are rejected.
//
// Examples:
//
//	ParseMoney("80")     -> 8000
//	ParseMoney("12,345") -> 1235
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("parse amount: empty")
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return fromDecimal(d)
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return Money{}, ErrNegativeAmount
	}
	return centsOf(d)
}

// centsOf rounds d to cents, refusing anything beyond MaxAmount in either
// direction so the int64 conversion cannot wrap.
func centsOf(d decimal.Decimal) (Money, error) {
	cents := d.Shift(2).Round(0)
	if cents.Abs().GreaterThan(maxAmountDecimal) {
		return Money{}, fmt.Errorf("%w: %s", ErrAmountTooLarge, d.String())
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Add returns m + o, saturating at the int64 limits instead of wrapping.
func (m Money) Add(o Money) Money {
	switch {
	case o.Cents > 0 && m.Cents > math.MaxInt64-o.Cents:
		return Money{Cents: math.MaxInt64}
	case o.Cents < 0 && m.Cents < math.MinInt64-o.Cents:
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: m.Cents + o.Cents}
}

// Times returns m multiplied by a quantity, saturating like Add.
func (m Money) Times(qty int) Money {
	q := int64(qty)
	if m.Cents == 0 || q == 0 {
		return Money{}
	}
	p := m.Cents * q
	if p/q != m.Cents || (m.Cents == -1 && q == math.MinInt64) || (q == -1 && m.Cents == math.MinInt64) {
		if (m.Cents > 0) == (q > 0) {
			return Money{Cents: math.MaxInt64}
		}
		return Money{Cents: math.MinInt64}
	}
	return Money{Cents: p}
}

// TooLarge reports whether the amount is beyond MaxAmount.
func (m Money) TooLarge() bool {
	return m.Cents > MaxAmount || m.Cents < -MaxAmount
}

// String formats the amount in units without trailing zeros ("80", "12.5").
func (m Money) String() string {
	return m.Decimal().String()
}

// Fixed formats the amount with exactly two decimals, for exports.
func (m Money) Fixed() string {
	return m.Decimal().StringFixed(2)
}

// Rounded returns the amount rounded to whole units, as dashboards show it.
func (m Money) Rounded() int64 {
	return m.Decimal().Round(0).IntPart()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts numbers and quoted decimal strings. Negative values
// decode as-is so validation can report them with context; values beyond
// MaxAmount fail with ErrAmountTooLarge.
func (m *Money) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = Money{}
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("decode amount: %w", err)
	}
	v, err := centsOf(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
