package cashout

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxbank/ebicsd/internal/ledger"
)

func TestNewTanIsFiveAlphanumericChars(t *testing.T) {
	tan, err := NewTan()
	require.NoError(t, err)
	require.Len(t, tan, 5)
	for _, r := range tan {
		assert.Contains(t, tanAlphabet, string(r))
	}
}

func TestEstimateAppliesRateAndFee(t *testing.T) {
	demobank := ledger.Demobank{
		Currency: "EUR", FiatCurrency: "CHF",
		SellRate: decimal.RequireFromString("0.95"),
		SellFee:  decimal.Zero,
	}
	got := Estimate(demobank, decimal.RequireFromString("20.00"))
	assert.True(t, got.Equal(decimal.RequireFromString("19.00")))
}

func TestInstitutionalAccountCannotCashOut(t *testing.T) {
	s := &Service{}
	_, err := s.Create(nil, ledger.Demobank{}, ledger.BankAccount{Label: "admin"},
		decimal.RequireFromString("1.00"), "subject", "payto://iban/CH99", TanFile, "")
	assert.ErrorIs(t, err, ErrInstitutionalUser)
}
