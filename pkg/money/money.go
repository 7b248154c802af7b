package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is assumed when a caller does not specify one.
const DefaultCurrency = "USD"

// Money is a currency amount in integer minor units (cents).
// Stored state is never a binary float; decimal strings only appear
// at the parse/format boundary.
type Money struct {
	Cents    int64  `json:"amount_cents"`
	Currency string `json:"currency"`
}

// New creates a Money value from integer minor units.
func New(cents int64, currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Cents: cents, Currency: currency}
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return New(0, currency)
}

// Parse converts a decimal string like "40.68" into minor units.
func Parse(s string, currency string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	cents := d.Mul(decimal.NewFromInt(100))
	if !cents.IsInteger() {
		return Money{}, fmt.Errorf("amount %q has sub-cent precision", s)
	}
	return New(cents.IntPart(), currency), nil
}

// Add returns m + other. Panics on currency mismatch; amounts from two
// currencies never meet inside one invoice.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Cents: m.Cents + other.Cents, Currency: m.Currency}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Cents: m.Cents - other.Cents, Currency: m.Currency}
}

// Equal reports whether two amounts are identical in minor units.
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Cents == other.Cents
}

// GreaterThan reports m > other.
func (m Money) GreaterThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Cents > other.Cents
}

// IsPositive reports m > 0.
func (m Money) IsPositive() bool {
	return m.Cents > 0
}

// IsZero reports m == 0.
func (m Money) IsZero() bool {
	return m.Cents == 0
}

// IsNegative reports m < 0.
func (m Money) IsNegative() bool {
	return m.Cents < 0
}

// Decimal returns the amount in major units as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Cents).Div(decimal.NewFromInt(100))
}

// String formats the amount as "40.68 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Decimal().StringFixed(2), m.Currency)
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("currency mismatch: %s vs %s", m.Currency, other.Currency))
	}
}
