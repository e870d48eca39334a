package cashout_test

import (
	"context"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sandboxbank/ebicsd/internal/cashout"
	"github.com/sandboxbank/ebicsd/internal/ledger"
	"github.com/sandboxbank/ebicsd/internal/notify"
	"github.com/sandboxbank/ebicsd/internal/schema"
	"github.com/sandboxbank/ebicsd/internal/testutil"
)

func setupCashout(t *testing.T) (*cashout.Service, *ledger.Repository, *testutil.PostgresContainer) {
	t.Helper()

	schemaSQL, err := schema.InitialSchema()
	require.NoError(t, err)

	pg := testutil.StartPostgres(t, string(schemaSQL))
	ctx := context.Background()

	_, err = pg.Pool.Exec(ctx, `
		INSERT INTO demobank_configs (name, currency, bank_debt_limit, users_debt_limit, fiat_currency, sell_rate, sell_fee)
		VALUES ('default', 'EUR', 1000000, 100, 'CHF', 0.95, 0)`)
	require.NoError(t, err)

	_, err = pg.Pool.Exec(ctx, `
		INSERT INTO bank_accounts (iban, bic, label, owner_username, demobank_name)
		VALUES
			('CH0001', 'SANDCHZZ', 'admin', 'admin', 'default'),
			('CH0002', 'SANDCHZZ', 'alice', 'alice', 'default')`)
	require.NoError(t, err)

	ledgerRepo := ledger.NewRepository()
	bus := notify.NewMemoryBus()
	l := ledger.NewLedger(pg.Pool, ledgerRepo, bus)

	cashoutRepo := cashout.NewRepository()
	tan := cashout.NewTanSender("", "")
	svc := cashout.NewService(pg.Pool, l, cashoutRepo, tan)

	return svc, ledgerRepo, pg
}

// TestCashoutLifecycle exercises spec.md scenario S4 end to end against
// the FILE tan channel, which never shells out to an external command.
func TestCashoutLifecycle(t *testing.T) {
	svc, repo, pg := setupCashout(t)
	ctx := context.Background()

	demobank, err := repo.GetDemobank(ctx, pg.Pool, "default")
	require.NoError(t, err)
	alice, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "alice")
	require.NoError(t, err)
	admin, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "admin")
	require.NoError(t, err)

	// seed alice with a starting balance so the debit has room.
	_, err = ledger.NewLedger(pg.Pool, repo, notify.NewMemoryBus()).Post(ctx, ledger.PostParams{
		Demobank: demobank, DebitAccount: admin, CreditAccount: alice,
		Subject: "seed", Amount: decimal.RequireFromString("100.00"), Currency: "EUR",
	})
	require.NoError(t, err)

	op, err := svc.Create(ctx, demobank, alice, decimal.RequireFromString("20.00"),
		"test cashout", "payto://iban/CH99", cashout.TanFile, "")
	require.NoError(t, err)
	require.Equal(t, cashout.StatusPending, op.Status)

	tanBytes, err := os.ReadFile("/tmp/libeufin-cashout-tan.txt")
	require.NoError(t, err)
	require.Equal(t, op.Tan, string(tanBytes))

	err = svc.Confirm(ctx, demobank, alice, admin, op.UUID, string(tanBytes))
	require.NoError(t, err)

	balance, err := ledger.NewLedger(pg.Pool, repo, notify.NewMemoryBus()).Balance(ctx, pg.Pool, alice, true)
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.RequireFromString("80.00")))

	confirmed, err := cashout.NewRepository().Get(ctx, pg.Pool, op.UUID)
	require.NoError(t, err)
	require.Equal(t, cashout.StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmationTime)

	err = svc.Confirm(ctx, demobank, alice, admin, op.UUID, string(tanBytes))
	require.ErrorIs(t, err, cashout.ErrAlreadyConfirmed)
}

// TestAbortPendingCashout exercises scenario S6.
func TestAbortPendingCashout(t *testing.T) {
	svc, repo, pg := setupCashout(t)
	ctx := context.Background()

	demobank, err := repo.GetDemobank(ctx, pg.Pool, "default")
	require.NoError(t, err)
	alice, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "alice")
	require.NoError(t, err)
	admin, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "admin")
	require.NoError(t, err)

	op, err := svc.Create(ctx, demobank, alice, decimal.RequireFromString("5.00"),
		"abort me", "payto://iban/CH99", cashout.TanFile, "")
	require.NoError(t, err)

	require.NoError(t, svc.Abort(ctx, op.UUID))

	_, err = cashout.NewRepository().Get(ctx, pg.Pool, op.UUID)
	require.ErrorIs(t, err, cashout.ErrNotFound)

	err = svc.Confirm(ctx, demobank, alice, admin, op.UUID, "ANYTAN")
	require.ErrorIs(t, err, cashout.ErrNotFound)
}

func TestWrongTanRejected(t *testing.T) {
	svc, repo, pg := setupCashout(t)
	ctx := context.Background()

	demobank, err := repo.GetDemobank(ctx, pg.Pool, "default")
	require.NoError(t, err)
	alice, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "alice")
	require.NoError(t, err)
	admin, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", "admin")
	require.NoError(t, err)

	op, err := svc.Create(ctx, demobank, alice, decimal.RequireFromString("5.00"),
		"bad tan", "payto://iban/CH99", cashout.TanFile, "")
	require.NoError(t, err)

	err = svc.Confirm(ctx, demobank, alice, admin, op.UUID, "WRONG1")
	require.ErrorIs(t, err, cashout.ErrWrongTan)
}
