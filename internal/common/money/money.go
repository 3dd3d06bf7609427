// Package money provides minor-unit monetary amounts and the currency
// normalization rules used when comparing cart totals against amounts
// reported by the payment provider.
package money

import (
	"fmt"
	"math"
	"strings"
)

// Currency is an ISO 4217 currency code.
type Currency string

const (
	UAH Currency = "UAH"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	KRW Currency = "KRW"
	VND Currency = "VND"
	CLP Currency = "CLP"
	ISK Currency = "ISK"
)

// CurrencyInfo holds metadata about a currency.
type CurrencyInfo struct {
	Code       Currency
	MinorUnits int // decimal places in the minor unit
}

var currencies = map[Currency]CurrencyInfo{
	UAH: {Code: UAH, MinorUnits: 2},
	USD: {Code: USD, MinorUnits: 2},
	EUR: {Code: EUR, MinorUnits: 2},
	GBP: {Code: GBP, MinorUnits: 2},
	JPY: {Code: JPY, MinorUnits: 0},
	KRW: {Code: KRW, MinorUnits: 0},
	VND: {Code: VND, MinorUnits: 0},
	CLP: {Code: CLP, MinorUnits: 0},
	ISK: {Code: ISK, MinorUnits: 0},
}

// GetCurrencyInfo returns info about a currency. The lookup is
// case-insensitive; provider callbacks report currency codes in
// inconsistent casing.
func GetCurrencyInfo(code string) (CurrencyInfo, bool) {
	info, ok := currencies[Currency(strings.ToUpper(code))]
	return info, ok
}

// Divisor returns the factor that converts a minor-unit amount of the
// given currency into major units: 1 for currencies without a fractional
// subunit, 100 otherwise. Unknown currencies are treated as having a
// two-digit subunit.
//
// The divisor is a property of the currency, never of an individual
// transaction. Every conversion between cart totals and provider-reported
// amounts must go through this function so both sides of a comparison use
// the same unit convention.
func Divisor(code string) float64 {
	if info, ok := GetCurrencyInfo(code); ok && info.MinorUnits == 0 {
		return 1
	}
	return 100
}

// NormalizeMinor converts a minor-unit total into the major-unit value the
// provider reports, applying the currency's divisor.
func NormalizeMinor(amountMinor int64, code string) float64 {
	return math.Floor(float64(amountMinor)) / Divisor(code)
}

// SameCurrency reports whether two currency codes refer to the same
// currency, ignoring case.
func SameCurrency(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Money is a monetary amount in minor units (kopiykas, cents, pence).
type Money struct {
	AmountMinor int64    `json:"amount_minor"`
	Currency    Currency `json:"currency"`
}

// New creates a Money value from minor units.
func New(amountMinor int64, currency Currency) Money {
	return Money{AmountMinor: amountMinor, Currency: currency}
}

// FromMajor creates Money from a major-unit amount (e.g. 19.99 UAH),
// rounding to the nearest minor unit.
func FromMajor(amountMajor float64, currency Currency) Money {
	return Money{
		AmountMinor: int64(math.Round(amountMajor * Divisor(string(currency)))),
		Currency:    currency,
	}
}

// ToMajor converts to major units as a float.
func (m Money) ToMajor() float64 {
	return NormalizeMinor(m.AmountMinor, string(m.Currency))
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.AmountMinor == 0
}

// IsPositive reports whether the amount is positive.
func (m Money) IsPositive() bool {
	return m.AmountMinor > 0
}

// Equal checks equality of amount and currency.
func (m Money) Equal(other Money) bool {
	return m.AmountMinor == other.AmountMinor && m.Currency == other.Currency
}

// Add adds two money values of the same currency.
func (m Money) Add(other Money) (Money, error) {
	if m.Currency != other.Currency {
		return Money{}, fmt.Errorf("currency mismatch: %s vs %s", m.Currency, other.Currency)
	}
	return Money{AmountMinor: m.AmountMinor + other.AmountMinor, Currency: m.Currency}, nil
}

// String returns a human-readable representation.
func (m Money) String() string {
	info, ok := GetCurrencyInfo(string(m.Currency))
	if !ok {
		return fmt.Sprintf("%d %s (minor)", m.AmountMinor, m.Currency)
	}
	format := fmt.Sprintf("%%.%df %%s", info.MinorUnits)
	return fmt.Sprintf(format, m.ToMajor(), m.Currency)
}
