// Package money provides the decimal and currency-prefixed amount
// helpers shared by the ledger, CAMT builder, and cash-out conversion
// pipeline.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a currency-prefixed decimal amount as used by the companion
// HTTP/JSON API, e.g. "EUR:20.50".
type Amount struct {
	Currency string
	Value    decimal.Decimal
}

// ParseAmount parses a "CUR:X.Y" string as used by the cash-out API.
func ParseAmount(s string) (Amount, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Amount{}, fmt.Errorf("money: malformed amount %q, want CUR:VALUE", s)
	}

	cur := strings.ToUpper(strings.TrimSpace(parts[0]))
	if len(cur) != 3 {
		return Amount{}, fmt.Errorf("money: malformed currency %q", parts[0])
	}

	val, err := ParseDecimal(parts[1])
	if err != nil {
		return Amount{}, err
	}

	return Amount{Currency: cur, Value: val}, nil
}

// String renders the amount back to "CUR:X.Y" form.
func (a Amount) String() string {
	return fmt.Sprintf("%s:%s", a.Currency, a.Value.String())
}

// decimalPattern is the wire grammar mandated by spec.md §6 for plain
// (non currency-prefixed) decimal amounts, e.g. pain.001 Amt or ledger
// amount fields.
const decimalPattern = `^[0-9]+(\.[0-9]+)?$`

// ParseDecimal parses a plain (unsigned) decimal string, rejecting
// anything that doesn't match the wire grammar used by pain.001/CAMT.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !matchesDecimalPattern(s) {
		return decimal.Decimal{}, fmt.Errorf("money: %q is not a valid unsigned decimal amount", s)
	}
	return decimal.NewFromString(s)
}

// matchesDecimalPattern is a small hand-rolled matcher for
// ^[0-9]+(\.[0-9]+)?$ — avoids pulling in regexp for a single-use,
// performance-sensitive parse-time check on the EBICS/pain.001 hot path.
func matchesDecimalPattern(s string) bool {
	if s == "" {
		return false
	}

	i := 0
	digits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		digits++
	}
	if digits == 0 {
		return false
	}
	if i == len(s) {
		return true
	}
	if s[i] != '.' {
		return false
	}
	i++
	fracDigits := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
		fracDigits++
	}
	return i == len(s) && fracDigits > 0
}

// Round2 rounds v to two decimal places using banker's rounding
// (round-half-to-even), matching the "MathContext precision 2" rule in
// spec.md §6.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.RoundBank(2)
}

// PlainString renders a decimal the way CAMT/pain.001 expect: no
// currency prefix and always exactly two fractional digits.
func PlainString(v decimal.Decimal) string {
	return v.StringFixed(2)
}

// ApplySellRate converts a regional amount R to its credited fiat
// amount given sell ratio S and sell fee F: C = round2(R*S - F)
// (spec.md §6 "rate/fee application").
func ApplySellRate(regional, rate, fee decimal.Decimal) decimal.Decimal {
	return Round2(regional.Mul(rate).Sub(fee))
}

// InverseSellRate recovers the regional amount R from a credited fiat
// amount C: R = round2((C+F)/S).
func InverseSellRate(credit, rate, fee decimal.Decimal) decimal.Decimal {
	return Round2(credit.Add(fee).Div(rate))
}
