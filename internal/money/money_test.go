package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("eur:20.50")
	require.NoError(t, err)
	assert.Equal(t, "EUR", a.Currency)
	assert.True(t, a.Value.Equal(decimal.RequireFromString("20.50")))

	_, err = ParseAmount("not-an-amount")
	assert.Error(t, err)

	_, err = ParseAmount("EU:1.00")
	assert.Error(t, err)
}

func TestParseDecimalRejectsNonMatchingGrammar(t *testing.T) {
	_, err := ParseDecimal("-5.00")
	assert.Error(t, err)

	_, err = ParseDecimal("5.")
	assert.Error(t, err)

	v, err := ParseDecimal("5")
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("5")))
}

func TestRound2UsesBankersRounding(t *testing.T) {
	assert.True(t, Round2(decimal.RequireFromString("2.005")).Equal(decimal.RequireFromString("2.00")))
	assert.True(t, Round2(decimal.RequireFromString("2.015")).Equal(decimal.RequireFromString("2.02")))
}

// TestRateRoundTrip exercises spec.md §8 invariant 7: applying the
// sell rate and its inverse returns the original regional amount.
func TestRateRoundTrip(t *testing.T) {
	rate := decimal.RequireFromString("0.95")
	fee := decimal.RequireFromString("0.00")
	regional := decimal.RequireFromString("20.00")

	credit := ApplySellRate(regional, rate, fee)
	assert.True(t, credit.Equal(decimal.RequireFromString("19.00")))

	back := InverseSellRate(credit, rate, fee)
	assert.True(t, back.Equal(regional))
}

func TestApplySellRateWithFee(t *testing.T) {
	rate := decimal.RequireFromString("1.00")
	fee := decimal.RequireFromString("0.50")
	credit := ApplySellRate(decimal.RequireFromString("10.00"), rate, fee)
	assert.True(t, credit.Equal(decimal.RequireFromString("9.50")))
}
