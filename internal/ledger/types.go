package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction distinguishes the credit and debit leg of a posting. Every
// posting produces exactly one row of each direction, sharing the same
// AccountServicerReference (spec.md §3, invariant on LedgerTransaction).
type Direction string

const (
	CRDT Direction = "CRDT"
	DBIT Direction = "DBIT"
)

// Demobank is a named logical tenant bundling a currency and the debt
// limits enforced at posting time.
type Demobank struct {
	Name                    string
	Currency                string
	BankDebtLimit           decimal.Decimal
	UsersDebtLimit          decimal.Decimal
	FiatCurrency            string
	SellRate                decimal.Decimal
	SellFee                 decimal.Decimal
	AdvanceWatermarkOnError bool
}

// BankAccount models a sandbox account. Balance is always derived, never
// stored directly (spec.md §3).
type BankAccount struct {
	ID                   int64
	IBAN                 string
	BIC                  string
	Label                string
	OwnerUsername        string
	DemobankName         string
	LastTransactionID    *int64
	LastFiatSubmissionID *int64
}

// IsAdmin reports whether this account is the institutional drain
// target used by the cash-out monitor and debit-limit rule.
func (a BankAccount) IsAdmin() bool {
	return a.Label == "admin"
}

// LedgerTransaction is one immutable leg of a double-entry posting.
type LedgerTransaction struct {
	ID                       int64
	CreditorIBAN             string
	CreditorBIC              string
	CreditorName             string
	DebtorIBAN               string
	DebtorBIC                string
	DebtorName               string
	Subject                  string
	Amount                   decimal.Decimal
	Currency                 string
	Timestamp                time.Time
	AccountServicerReference string
	MsgID                    string
	PmtInfID                 string
	EndToEndID               string
	Direction                Direction
	AccountID                int64
	DemobankName             string
}

// SignedAmount returns +Amount for CRDT and -Amount for DBIT, the
// quantity folded when computing balances from fresh transactions.
func (t LedgerTransaction) SignedAmount() decimal.Decimal {
	if t.Direction == DBIT {
		return t.Amount.Neg()
	}
	return t.Amount
}

// FreshTransaction is an outbox pointer into LedgerTransaction, cleared
// once a statement covering it is materialized.
type FreshTransaction struct {
	TransactionID int64
	AccountID     int64
}

// BankAccountStatement is an immutable snapshot of an account's booked
// balance at a point in time, together with the rendered CAMT.053 bytes.
type BankAccountStatement struct {
	ID           int64
	AccountID    int64
	CreationTime time.Time
	CamtXML      []byte
	BalanceCLBD  decimal.Decimal
}
