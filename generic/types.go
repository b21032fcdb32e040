/*
Package generic provides the domain-agnostic primitives of the budget engine.

PURPOSE:
  This package contains the money, calendar and error types shared by every
  other package. Whether a caller is spreading a stage total across months,
  summing recorded progress or building a cumulative curve, the same Amount,
  TimePoint, Period and Month types are used.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity backed by decimal.Decimal
  - Cents:  Integer cent representation used for exact accumulation

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Quantization: Persisted values are always rounded to whole cents
  3. Single currency: There is no currency field; the budget has one

USAGE:
  total := generic.MustParseAmount("10000.00")
  perDay := total.Div(decimal.NewFromInt(56))
  jan := perDay.Mul(decimal.NewFromInt(17)).RoundCents() // 3035.71

SEE ALSO:
  - time.go:   TimePoint and calendar helpers
  - period.go: Inclusive date ranges and month partitioning
  - month.go:  Calendar months and YYYY-MM keys
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary quantity
// =============================================================================

// Amount is a monetary value. The zero value is zero.
type Amount struct {
	Value decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

func NewAmountFromDecimal(value decimal.Decimal) Amount {
	return Amount{Value: value}
}

// AmountFromCents converts an integer cent count back to a decimal amount.
func AmountFromCents(cents int64) Amount {
	return Amount{Value: decimal.New(cents, -2)}
}

// ParseAmount parses a decimal string such as "1785.72".
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Value: d}, nil
}

func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s)} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }

// Div divides without intermediate rounding to cents. The decimal library
// carries DivisionPrecision (16) fractional digits, which is well beyond
// what any cent-rounded result needs.
func (a Amount) Div(s decimal.Decimal) Amount { return Amount{Value: a.Value.Div(s)} }

// RoundCents rounds half away from zero to two decimal places.
func (a Amount) RoundCents() Amount {
	return Amount{Value: a.Value.Round(2)}
}

// Cents returns the amount as an integer number of cents, rounding half
// away from zero first.
func (a Amount) Cents() int64 {
	return a.Value.Mul(hundred).Round(0).IntPart()
}

// String renders the amount with exactly two decimals.
func (a Amount) String() string {
	return a.Value.StringFixed(2)
}
