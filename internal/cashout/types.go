// Package cashout implements the cash-out conversion pipeline (C8):
// creating, confirming, and aborting customer cash-out requests, and
// the background monitor that drains newly posted regional credits to
// the external Nexus fiat connector (spec.md §4.8).
package cashout

import (
	"time"

	"github.com/shopspring/decimal"
)

// TanChannel is the delivery channel for a cash-out's TAN.
type TanChannel string

const (
	TanEmail TanChannel = "EMAIL"
	TanSMS   TanChannel = "SMS"
	TanFile  TanChannel = "FILE"
)

// Status is a CashoutOperation's lifecycle state. It transitions only
// PENDING -> CONFIRMED (spec.md §3 invariant).
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
)

// Operation is one customer cash-out request: a regional debit
// converted to a fiat credit at a captured rate/fee snapshot.
type Operation struct {
	UUID             string
	AccountUsername  string
	AmountDebit      string // "CUR:X.Y", regional
	AmountCredit     string // "CUR:X.Y", fiat
	Rate             decimal.Decimal
	Fee              decimal.Decimal
	Subject          string
	CreatedAt        time.Time
	ConfirmationTime *time.Time
	TanChannel       TanChannel
	CashoutAddress   string
	Tan              string
	Status           Status
}

// Submission is one Nexus payment-initiation attempt for a regional
// CRDT row on a drained account.
type Submission struct {
	ID            int64
	TransactionID int64
	SubmittedAt   time.Time
	ResponseBody  string
	HasErrors     bool
}
