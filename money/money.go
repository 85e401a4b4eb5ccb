/*
Package money provides the monetary value type used throughout the engine.

PURPOSE:
  Balances, prices, and ledger amounts are all money. The original system
  this replaces carried amounts as floating point, which drifts when a
  balance is the sum of many entries. Money wraps decimal.Decimal so that
  summation is exact.

CONVENTIONS:
  - Amounts are signed: positive = credit, negative = debit.
  - Single currency. Multi-currency is explicitly out of scope.
  - Money is a value type; all operations return a new value.
*/
package money

import "github.com/shopspring/decimal"

// Money is an exact monetary amount.
type Money struct {
	Value decimal.Decimal
}

func Zero() Money                 { return Money{Value: decimal.Zero} }
func New(value float64) Money     { return Money{Value: decimal.NewFromFloat(value)} }
func FromInt(value int64) Money   { return Money{Value: decimal.NewFromInt(value)} }

// Parse parses a decimal string such as "149.90".
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

// MustParse is Parse for trusted input (storage round-trips, tests).
// Malformed input yields zero rather than a panic.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		return Zero()
	}
	return m
}

func (m Money) Add(o Money) Money         { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money         { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money                { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool              { return m.Value.IsZero() }
func (m Money) IsNegative() bool          { return m.Value.IsNegative() }
func (m Money) IsPositive() bool          { return m.Value.IsPositive() }
func (m Money) Equal(o Money) bool        { return m.Value.Equal(o.Value) }
func (m Money) LessThan(o Money) bool     { return m.Value.LessThan(o.Value) }
func (m Money) GreaterThan(o Money) bool  { return m.Value.GreaterThan(o.Value) }

// Float64 is for display only; storage and arithmetic stay decimal.
func (m Money) Float64() float64 {
	f, _ := m.Value.Float64()
	return f
}

func (m Money) String() string { return m.Value.String() }
