package camt

import (
	"encoding/xml"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxbank/ebicsd/internal/ledger"
)

func TestCreditDebitIndicator(t *testing.T) {
	assert.Equal(t, "CRDT", creditDebitIndicator(decimal.Zero))
	assert.Equal(t, "CRDT", creditDebitIndicator(decimal.RequireFromString("10")))
	assert.Equal(t, "DBIT", creditDebitIndicator(decimal.RequireFromString("-10")))
}

func TestBuildStatementChainsBalancesAndEntries(t *testing.T) {
	account := ledger.BankAccount{IBAN: "CH0002", BIC: "SANDCHZZ", Label: "alice"}
	fresh := []ledger.LedgerTransaction{
		{
			Amount: decimal.RequireFromString("20.00"), Currency: "EUR",
			Direction: ledger.CRDT, AccountServicerReference: "ref1",
			Timestamp: time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
		},
	}

	out, err := BuildStatement(account, "EUR",
		decimal.RequireFromString("100.00"), decimal.RequireFromString("120.00"),
		fresh, time.Date(2026, 7, 2, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var doc Document
	require.NoError(t, xml.Unmarshal(out, &doc))

	require.Len(t, doc.Stmt.Balances, 2)
	assert.Equal(t, "PRCD", doc.Stmt.Balances[0].Type)
	assert.Equal(t, "100.00", doc.Stmt.Balances[0].Amount.Value)
	assert.Equal(t, "CRDT", doc.Stmt.Balances[0].CreditDebit)

	assert.Equal(t, "CLBD", doc.Stmt.Balances[1].Type)
	assert.Equal(t, "120.00", doc.Stmt.Balances[1].Amount.Value)

	require.Len(t, doc.Stmt.Entries, 1)
	assert.Equal(t, "CRDT", doc.Stmt.Entries[0].CreditDebit)
	assert.Equal(t, "ref1", doc.Stmt.Entries[0].Reference)
	assert.Equal(t, NamespaceCamt053, doc.Xmlns)
}

func TestBuildStatementPopulatesGroupHeaderAndTxDtls(t *testing.T) {
	account := ledger.BankAccount{IBAN: "CH0002", BIC: "SANDCHZZ", Label: "alice"}
	fresh := []ledger.LedgerTransaction{
		{
			Amount: decimal.RequireFromString("20.00"), Currency: "EUR",
			Direction: ledger.CRDT, AccountServicerReference: "ref1",
			Timestamp:    time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC),
			MsgID:        "sandbox-1000", PmtInfID: "pmtinfo-1",
			DebtorName: "bob", DebtorIBAN: "CH0001", DebtorBIC: "SANDCHZZ",
		},
	}

	at := time.Date(2026, 7, 2, 8, 0, 0, 0, time.UTC)
	out, err := BuildStatement(account, "EUR",
		decimal.RequireFromString("100.00"), decimal.RequireFromString("120.00"),
		fresh, at)
	require.NoError(t, err)

	var doc Document
	require.NoError(t, xml.Unmarshal(out, &doc))

	assert.Equal(t, "sandbox-1782979200000", doc.GrpHdr.MsgID)

	require.Len(t, doc.Stmt.Entries, 1)
	entry := doc.Stmt.Entries[0]
	assert.Equal(t, "BOOK", entry.Status)
	assert.Equal(t, "PMNT", entry.BkTxDomain)
	assert.Equal(t, "ICDT", entry.BkTxFamily)
	assert.Equal(t, "ESCT", entry.BkTxSubFam)
	assert.Equal(t, "sandbox-1000", entry.MsgID)
	assert.Equal(t, "pmtinfo-1", entry.PmtInfID)
	assert.Equal(t, "bob", entry.CounterpartyName)
	assert.Equal(t, "CH0001", entry.CounterpartyIBAN)
	assert.Equal(t, "SANDCHZZ", entry.CounterpartyBIC)
}

func TestBuildReportUsesCamt052Namespace(t *testing.T) {
	account := ledger.BankAccount{IBAN: "CH0002", Label: "alice"}
	out, err := BuildReport(account, "EUR", decimal.Zero, decimal.Zero, nil, time.Now().UTC())
	require.NoError(t, err)

	var doc Document
	require.NoError(t, xml.Unmarshal(out, &doc))
	assert.Equal(t, NamespaceCamt052, doc.Xmlns)
}

func TestBuildStatementNegativeBalanceIsDBIT(t *testing.T) {
	account := ledger.BankAccount{IBAN: "CH0001", Label: "admin"}
	out, err := BuildStatement(account, "EUR",
		decimal.Zero, decimal.RequireFromString("-30.00"), nil, time.Now().UTC())
	require.NoError(t, err)

	var doc Document
	require.NoError(t, xml.Unmarshal(out, &doc))
	assert.Equal(t, "DBIT", doc.Stmt.Balances[1].CreditDebit)
	assert.Equal(t, "30.00", doc.Stmt.Balances[1].Amount.Value)
}
