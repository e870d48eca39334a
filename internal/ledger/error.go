package ledger

import "fmt"

var (
	ErrInsufficientFunds = fmt.Errorf("ledger: debit would exceed the account's debt limit")
	ErrBadCurrency       = fmt.Errorf("ledger: amount currency does not match the demobank currency")
	ErrZeroAmount        = fmt.Errorf("ledger: amount must be greater than zero")

	ErrAccountNotFound  = fmt.Errorf("ledger: account not found")
	ErrDemobankNotFound = fmt.Errorf("ledger: demobank not found")

	ErrNoStatements = fmt.Errorf("ledger: no statements in the requested range")
)
