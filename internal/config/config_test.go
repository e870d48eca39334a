package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFieldSetsKnownFields(t *testing.T) {
	var d DemobankDefaults
	require.NoError(t, ApplyField(&d, "name", "default"))
	require.NoError(t, ApplyField(&d, "currency", "EUR"))
	require.NoError(t, ApplyField(&d, "sell_rate", "0.95"))
	require.NoError(t, ApplyField(&d, "advance_watermark_on_error", "true"))

	assert.Equal(t, "default", d.Name)
	assert.Equal(t, "EUR", d.Currency)
	assert.True(t, d.SellRate.Equal(decimal.RequireFromString("0.95")))
	assert.True(t, d.AdvanceWatermarkOnError)
}

func TestApplyFieldIgnoresUnknownColumn(t *testing.T) {
	var d DemobankDefaults
	require.NoError(t, ApplyField(&d, "not_a_real_column", "whatever"))
}

func TestApplyFieldRejectsBadDecimal(t *testing.T) {
	var d DemobankDefaults
	err := ApplyField(&d, "sell_fee", "not-a-number")
	assert.Error(t, err)
}
