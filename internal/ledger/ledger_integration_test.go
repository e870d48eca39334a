package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sandboxbank/ebicsd/internal/ledger"
	"github.com/sandboxbank/ebicsd/internal/notify"
	"github.com/sandboxbank/ebicsd/internal/schema"
	"github.com/sandboxbank/ebicsd/internal/testutil"
)

// setupLedger seeds a demobank and two accounts (admin + alice) used by
// every scenario below, mirroring spec.md §8 fixtures S2/S3/S5.
func setupLedger(t *testing.T) (*ledger.Ledger, *ledger.Repository, *testutil.PostgresContainer) {
	t.Helper()

	schemaSQL, err := schema.InitialSchema()
	require.NoError(t, err)

	pg := testutil.StartPostgres(t, string(schemaSQL))
	ctx := context.Background()

	_, err = pg.Pool.Exec(ctx, `
		INSERT INTO demobank_configs (name, currency, bank_debt_limit, users_debt_limit)
		VALUES ('default', 'EUR', 1000000, 100)`)
	require.NoError(t, err)

	_, err = pg.Pool.Exec(ctx, `
		INSERT INTO bank_accounts (iban, bic, label, owner_username, demobank_name)
		VALUES
			('CH0001', 'SANDCHZZ', 'admin', 'admin', 'default'),
			('CH0002', 'SANDCHZZ', 'alice', 'alice', 'default')`)
	require.NoError(t, err)

	repo := ledger.NewRepository()
	bus := notify.NewMemoryBus()
	l := ledger.NewLedger(pg.Pool, repo, bus)
	return l, repo, pg
}

func TestLedgerPostAndBalance(t *testing.T) {
	l, repo, pg := setupLedger(t)
	ctx := context.Background()

	demobank, err := repo.GetDemobank(ctx, pg.Pool, "default")
	require.NoError(t, err)
	admin, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "admin")
	require.NoError(t, err)
	alice, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "alice")
	require.NoError(t, err)

	ref, err := l.Post(ctx, ledger.PostParams{
		Demobank:      demobank,
		DebitAccount:  admin,
		CreditAccount: alice,
		Subject:       "initial credit",
		Amount:        decimal.RequireFromString("50.00"),
		Currency:      "EUR",
		PmtInfID:      "seed-1",
		EndToEndID:    "e2e-1",
	})
	require.NoError(t, err)
	require.Len(t, ref, 8)

	balance, err := l.Balance(ctx, pg.Pool, alice, true)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.RequireFromString("50.00")))

	adminBalance, err := l.Balance(ctx, pg.Pool, admin, true)
	require.NoError(t, err)
	require.True(t, adminBalance.Equal(decimal.RequireFromString("-50.00")))
}

func TestLedgerDebitLimitEnforced(t *testing.T) {
	l, repo, pg := setupLedger(t)
	ctx := context.Background()

	demobank, err := repo.GetDemobank(ctx, pg.Pool, "default")
	require.NoError(t, err)
	admin, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "admin")
	require.NoError(t, err)
	alice, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "alice")
	require.NoError(t, err)

	// alice's debit limit is 100; pushing her to -150 must fail.
	_, err = l.Post(ctx, ledger.PostParams{
		Demobank:      demobank,
		DebitAccount:  alice,
		CreditAccount: admin,
		Subject:       "over limit",
		Amount:        decimal.RequireFromString("150.00"),
		Currency:      "EUR",
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// Exactly at the limit succeeds.
	_, err = l.Post(ctx, ledger.PostParams{
		Demobank:      demobank,
		DebitAccount:  alice,
		CreditAccount: admin,
		Subject:       "at limit",
		Amount:        decimal.RequireFromString("100.00"),
		Currency:      "EUR",
	})
	require.NoError(t, err)
}

func TestLedgerRejectsZeroAndWrongCurrency(t *testing.T) {
	l, repo, pg := setupLedger(t)
	ctx := context.Background()

	demobank, err := repo.GetDemobank(ctx, pg.Pool, "default")
	require.NoError(t, err)
	admin, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "admin")
	require.NoError(t, err)
	alice, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "alice")
	require.NoError(t, err)

	_, err = l.Post(ctx, ledger.PostParams{
		Demobank: demobank, DebitAccount: admin, CreditAccount: alice,
		Amount: decimal.Zero, Currency: "EUR",
	})
	require.ErrorIs(t, err, ledger.ErrZeroAmount)

	_, err = l.Post(ctx, ledger.PostParams{
		Demobank: demobank, DebitAccount: admin, CreditAccount: alice,
		Amount: decimal.RequireFromString("10.00"), Currency: "USD",
	})
	require.ErrorIs(t, err, ledger.ErrBadCurrency)
}

func TestLedgerMaterializeStatementChainsBalance(t *testing.T) {
	l, repo, pg := setupLedger(t)
	ctx := context.Background()

	demobank, err := repo.GetDemobank(ctx, pg.Pool, "default")
	require.NoError(t, err)
	admin, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "admin")
	require.NoError(t, err)
	alice, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "alice")
	require.NoError(t, err)

	_, err = l.Post(ctx, ledger.PostParams{
		Demobank: demobank, DebitAccount: admin, CreditAccount: alice,
		Subject: "first", Amount: decimal.RequireFromString("20.00"), Currency: "EUR",
	})
	require.NoError(t, err)

	render := func(pre, post decimal.Decimal, fresh []ledger.LedgerTransaction, at time.Time) ([]byte, error) {
		return []byte("<Document/>"), nil
	}

	first, err := l.MaterializeStatement(ctx, alice, render)
	require.NoError(t, err)
	require.True(t, first.BalanceCLBD.Equal(decimal.RequireFromString("20.00")))

	_, err = l.Post(ctx, ledger.PostParams{
		Demobank: demobank, DebitAccount: admin, CreditAccount: alice,
		Subject: "second", Amount: decimal.RequireFromString("5.00"), Currency: "EUR",
	})
	require.NoError(t, err)

	second, err := l.MaterializeStatement(ctx, alice, render)
	require.NoError(t, err)
	require.True(t, second.BalanceCLBD.Equal(decimal.RequireFromString("25.00")))

	fresh, err := repo.FreshTransactions(ctx, pg.Pool, alice.ID)
	require.NoError(t, err)
	require.Empty(t, fresh)

	require.NoError(t, ledger.CheckStatementChain(first, second, []ledger.LedgerTransaction{
		{Amount: decimal.RequireFromString("5.00"), Direction: ledger.CRDT},
	}))
}

func TestLedgerPublishesRegionalTxNotification(t *testing.T) {
	l, repo, pg := setupLedger(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus := notify.NewMemoryBus()
	l = ledger.NewLedger(pg.Pool, repo, bus)

	demobank, err := repo.GetDemobank(ctx, pg.Pool, "default")
	require.NoError(t, err)
	admin, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "admin")
	require.NoError(t, err)
	alice, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "alice")
	require.NoError(t, err)

	channel := notify.ChannelName(notify.DomainRegionalTx, alice.Label)
	handle, err := bus.Listen(ctx, channel)
	require.NoError(t, err)

	_, err = l.Post(ctx, ledger.PostParams{
		Demobank: demobank, DebitAccount: admin, CreditAccount: alice,
		Subject: "notify me", Amount: decimal.RequireFromString("1.00"), Currency: "EUR",
	})
	require.NoError(t, err)

	payload, ok, err := bus.Wait(ctx, handle)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, notify.PayloadCredit, payload)
}
