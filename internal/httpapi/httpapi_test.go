package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sandboxbank/ebicsd/internal/cashout"
	"github.com/sandboxbank/ebicsd/internal/httpapi"
	"github.com/sandboxbank/ebicsd/internal/ledger"
	"github.com/sandboxbank/ebicsd/internal/notify"
	"github.com/sandboxbank/ebicsd/internal/schema"
	"github.com/sandboxbank/ebicsd/internal/testutil"
)

type noopEnvelope struct{}

func (noopEnvelope) HandleEnvelope(ctx context.Context, raw []byte) ([]byte, error) {
	return []byte("<ebicsResponse/>"), nil
}

func setupServer(t *testing.T) (*httptest.Server, *testutil.PostgresContainer) {
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
	l := ledger.NewLedger(pg.Pool, ledgerRepo, notify.NewMemoryBus())

	_, err = l.Post(ctx, ledger.PostParams{
		Demobank: mustDemobank(ctx, t, ledgerRepo, pg),
		DebitAccount: mustAccount(ctx, t, ledgerRepo, pg, "admin"),
		CreditAccount: mustAccount(ctx, t, ledgerRepo, pg, "alice"),
		Subject: "seed", Amount: decimal.RequireFromString("100.00"), Currency: "EUR",
	})
	require.NoError(t, err)

	cashoutSvc := cashout.NewService(pg.Pool, l, cashout.NewRepository(), cashout.NewTanSender("", ""))

	srv := &httpapi.Server{
		Envelope: noopEnvelope{},
		Accounts: httpapi.NewLedgerAccounts(pg.Pool, ledgerRepo),
		Cashouts: cashoutSvc,
		Demobank: "default",
	}

	return httptest.NewServer(srv.Mux()), pg
}

func mustDemobank(ctx context.Context, t *testing.T, repo *ledger.Repository, pg *testutil.PostgresContainer) ledger.Demobank {
	d, err := repo.GetDemobank(ctx, pg.Pool, "default")
	require.NoError(t, err)
	return d
}

func mustAccount(ctx context.Context, t *testing.T, repo *ledger.Repository, pg *testutil.PostgresContainer, label string) ledger.BankAccount {
	a, err := repo.GetAccountByLabel(ctx, pg.Pool, "default", label)
	require.NoError(t, err)
	return a
}

func TestEbicsEndpointRoundTrips(t *testing.T) {
	ts, _ := setupServer(t)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/ebics", "text/xml", bytes.NewReader([]byte("<ebicsRequest/>")))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndConfirmCashoutOverHTTP(t *testing.T) {
	ts, pg := setupServer(t)
	defer ts.Close()

	body, err := json.Marshal(map[string]string{
		"amount_debit":    "10.00",
		"subject":         "http cashout",
		"cashout_address": "payto://iban/CH99",
		"tan_channel":     "FILE",
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/cashouts", bytes.NewReader(body))
	require.NoError(t, err)
	req.SetBasicAuth("alice", "")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created struct {
		UUID string `json:"uuid"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.UUID)

	op, err := cashout.NewRepository().Get(context.Background(), pg.Pool, created.UUID)
	require.NoError(t, err)

	confirmBody, err := json.Marshal(map[string]string{"tan": op.Tan})
	require.NoError(t, err)
	confirmReq, err := http.NewRequest(http.MethodPost, ts.URL+"/cashouts/"+created.UUID+"/confirm", bytes.NewReader(confirmBody))
	require.NoError(t, err)
	confirmReq.SetBasicAuth("alice", "")
	confirmResp, err := http.DefaultClient.Do(confirmReq)
	require.NoError(t, err)
	defer confirmResp.Body.Close()
	require.Equal(t, http.StatusNoContent, confirmResp.StatusCode)
}

func TestEstimateEndpoint(t *testing.T) {
	ts, _ := setupServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/cashouts?amount=100.00")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, "95.00", out["amount_credit"])
}
