// Package types provides the value types shared by every dues package.
package types

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in the smallest currency unit.
// All arithmetic is integer-only; decimal strings are accepted only at the
// edges (ParseMoney, FormatMajor).
//
// Examples:
//   - ILS(150000) = ₪1500.00
//   - USD(4900) = $49.00
type Money struct {
	Amount   int64  `json:"amount"`   // Smallest unit (agorot, cents, ...)
	Currency string `json:"currency"` // ISO 4217 lowercase: "ils", "usd"
}

// ILS creates a Money value in Israeli new shekels (agorot).
func ILS(agorot int64) Money { return Money{Amount: agorot, Currency: "ils"} }

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in Euros (cents).
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// GBP creates a Money value in British Pounds (pence).
func GBP(pence int64) Money { return Money{Amount: pence, Currency: "gbp"} }

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return Money{Amount: 0, Currency: strings.ToLower(currency)} }

// New returns amount minor units of currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// ParseMoney parses a major-unit decimal string ("1500", "49.90") into Money.
// Values with more fractional digits than the currency allows are rejected
// rather than rounded.
func ParseMoney(s, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Money{}, fmt.Errorf("money: parse %q: %w", s, err)
	}

	places := int32(currencyDecimals(currency))
	minor := d.Shift(places)
	if !minor.Equal(minor.Truncate(0)) {
		return Money{}, fmt.Errorf("money: %q has more than %d decimal places", s, places)
	}

	return New(minor.IntPart(), currency), nil
}

// Decimal returns the value in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Amount, -int32(currencyDecimals(m.Currency)))
}

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// Multiply multiplies the Money by a quantity.
func (m Money) Multiply(qty int64) Money {
	return Money{Amount: m.Amount * qty, Currency: m.Currency}
}

// Negate returns the negative of the Money value.
func (m Money) Negate() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.Amount < 0 {
		return Money{Amount: -m.Amount, Currency: m.Currency}
	}
	return m
}

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.Amount < 0 }

// SameCurrency reports whether m and other share a currency.
func (m Money) SameCurrency(other Money) bool { return m.Currency == other.Currency }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Amount == other.Amount && m.Currency == other.Currency
}

// LessThan returns true if this Money is less than other. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount < other.Amount
}

// Min returns the smaller of two Money values. Panics if currencies don't match.
func (m Money) Min(other Money) Money {
	m.assertSameCurrency(other)
	if m.Amount < other.Amount {
		return m
	}
	return other
}

// FormatMajor returns the major unit string without currency symbol,
// e.g. "1500.00" for ILS(150000).
func (m Money) FormatMajor() string {
	return m.Decimal().StringFixed(int32(currencyDecimals(m.Currency)))
}

// String returns a human-readable string with currency symbol.
// Examples: "₪1500.00", "$49.00", "-€5.00"
func (m Money) String() string {
	symbol := currencySymbol(m.Currency)
	if m.Amount < 0 {
		return "-" + symbol + m.Abs().FormatMajor()
	}
	return symbol + m.FormatMajor()
}

// MarshalJSON implements json.Marshaler.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. The display field is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = New(raw.Amount, raw.Currency)
	return nil
}

// assertSameCurrency panics if currencies don't match.
func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

func currencySymbol(currency string) string {
	symbols := map[string]string{
		"ils": "₪",
		"usd": "$",
		"eur": "€",
		"gbp": "£",
		"cad": "C$",
		"aud": "A$",
		"chf": "CHF ",
	}
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

func currencyDecimals(currency string) int {
	zeroDecimal := map[string]bool{
		"jpy": true,
		"krw": true,
		"vnd": true,
		"clp": true,
	}
	if zeroDecimal[strings.ToLower(currency)] {
		return 0
	}
	return 2
}

// Sum adds values in the given currency. Panics on a currency mismatch.
func Sum(currency string, values ...Money) Money {
	result := Zero(currency)
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
