package orders

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/sandboxbank/ebicsd/internal/ledger"
	"github.com/sandboxbank/ebicsd/internal/subscriber"
)

// BoundAccounts implements SubscriberAccounts by resolving the
// subscriber's bank_account_id and loading that row from the ledger.
// A subscriber with no bound account (never linked at provisioning
// time) cannot use any account-scoped order type.
type BoundAccounts struct {
	pool *pgxpool.Pool
	subs *subscriber.Repository
	bank *ledger.Repository
}

// NewBoundAccounts constructs a BoundAccounts adapter.
func NewBoundAccounts(pool *pgxpool.Pool, subs *subscriber.Repository, bank *ledger.Repository) *BoundAccounts {
	return &BoundAccounts{pool: pool, subs: subs, bank: bank}
}

var _ SubscriberAccounts = (*BoundAccounts)(nil)

// AccountFor resolves the bank account bound to (hostID, partnerID,
// userID) at subscriber provisioning time.
func (b *BoundAccounts) AccountFor(ctx context.Context, hostID, partnerID, userID string) (ledger.BankAccount, error) {
	sub, err := b.subs.Get(ctx, b.pool, hostID, partnerID, userID)
	if err != nil {
		return ledger.BankAccount{}, fmt.Errorf("orders: resolve subscriber: %w", err)
	}
	if sub.BankAccountID == nil {
		return ledger.BankAccount{}, fmt.Errorf("orders: subscriber %s/%s has no bound bank account", partnerID, userID)
	}
	return b.bank.GetAccountByID(ctx, b.pool, *sub.BankAccountID)
}
