package httpapi

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/sandboxbank/ebicsd/internal/ledger"
)

// LedgerAccounts adapts internal/ledger's repository to the
// AccountDirectory interface, treating a bank account's label as its
// companion-API username — the same convention the ledger fixtures
// and cash-out scenarios already use ("admin", "alice").
type LedgerAccounts struct {
	pool *pgxpool.Pool
	repo *ledger.Repository
}

// NewLedgerAccounts constructs a LedgerAccounts.
func NewLedgerAccounts(pool *pgxpool.Pool, repo *ledger.Repository) *LedgerAccounts {
	return &LedgerAccounts{pool: pool, repo: repo}
}

var _ AccountDirectory = (*LedgerAccounts)(nil)

func (a *LedgerAccounts) AccountByUsername(ctx context.Context, demobank, username string) (ledger.BankAccount, error) {
	return a.repo.GetAccountByLabel(ctx, a.pool, demobank, username)
}

func (a *LedgerAccounts) Demobank(ctx context.Context, name string) (ledger.Demobank, error) {
	return a.repo.GetDemobank(ctx, a.pool, name)
}
