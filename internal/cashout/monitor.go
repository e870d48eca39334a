package cashout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/sandboxbank/ebicsd/internal/ledger"
	"github.com/sandboxbank/ebicsd/internal/logs"
	"github.com/sandboxbank/ebicsd/internal/money"
	"github.com/sandboxbank/ebicsd/internal/nexus"
	"github.com/sandboxbank/ebicsd/internal/notify"
)

// pollInterval is the fixed sleep at the top of every loop iteration
// on every path (success, idle, error), per spec.md §4.8 point 1.
const pollInterval = 2 * time.Second

// waitTimeout bounds the LISTEN wait before an optimistic re-query
// (spec.md §4.8 point 3).
const waitTimeout = 30 * time.Second

// Monitor drains one bank account's newly posted CRDT rows to Nexus.
// Grounded on htlcswitch/switch.go's long-running dispatcher: an
// atomic started/shutdown guard, a quit channel, and a single
// goroutine owning all state for this account so no locking is needed
// around the watermark.
type Monitor struct {
	account         ledger.BankAccount
	usernameAtNexus string

	pool      *pgxpool.Pool
	ledgerRepo *ledger.Repository
	cashoutRepo *Repository
	bus       notify.Bus
	nexus     *nexus.Client
	advanceOnError bool

	started int32
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor constructs a Monitor for one drained account.
func NewMonitor(account ledger.BankAccount, usernameAtNexus string, pool *pgxpool.Pool,
	ledgerRepo *ledger.Repository, cashoutRepo *Repository, bus notify.Bus, nexusClient *nexus.Client,
	advanceWatermarkOnError bool) *Monitor {

	return &Monitor{
		account:         account,
		usernameAtNexus: usernameAtNexus,
		pool:            pool,
		ledgerRepo:      ledgerRepo,
		cashoutRepo:     cashoutRepo,
		bus:             bus,
		nexus:           nexusClient,
		advanceOnError:  advanceWatermarkOnError,
		quit:            make(chan struct{}),
	}
}

// Start launches the drain loop on its own goroutine. It MUST NOT be
// called on the HTTP server's main goroutine (spec.md §5: "must not
// run on the HTTP server's single main thread").
func (m *Monitor) Start() error {
	if !atomic.CompareAndSwapInt32(&m.started, 0, 1) {
		return nil
	}
	m.wg.Add(1)
	go m.loop()
	return nil
}

// Stop signals the loop to exit and waits for it.
func (m *Monitor) Stop() {
	close(m.quit)
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	channel := notify.ChannelName(notify.DomainRegionalTx, m.account.Label)

	for {
		select {
		case <-time.After(pollInterval):
		case <-m.quit:
			return
		}

		if err := m.drainOnce(channel); err != nil {
			logs.Cashout.Errorf("cashout monitor %s: %v", m.account.Label, err)
		}
	}
}

// drainOnce implements one iteration of spec.md §4.8's loop body: it
// listens first (pessimistically), queries optimistically for rows
// past the watermark, and only blocks on the listen handle if the
// query came back empty.
func (m *Monitor) drainOnce(channel string) error {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout+10*time.Second)
	defer cancel()

	handle, err := m.bus.Listen(ctx, channel)
	if err != nil {
		return err
	}
	defer m.bus.Unlisten(handle)

	rows, err := m.pendingRows(ctx)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		payload, ok, err := notify.WaitTimeout(ctx, m.bus, handle, waitTimeout)
		if err != nil {
			return err
		}
		if !ok || payload != notify.PayloadCredit {
			return nil
		}
		rows, err = m.pendingRows(ctx)
		if err != nil {
			return err
		}
	}

	for _, row := range rows {
		if err := m.submit(ctx, row); err != nil {
			logs.Cashout.Errorf("cashout monitor %s: submit tx %d: %v", m.account.Label, row.ID, err)
		}
	}
	return nil
}

// Drain runs one immediate, non-blocking submission pass over rows
// past the watermark, bypassing the LISTEN wait. It backs the admin
// control plane's manual drain trigger (spec.md's "operator can force
// an immediate drain instead of waiting for the next poll").
func (m *Monitor) Drain(ctx context.Context) (int, error) {
	rows, err := m.pendingRows(ctx)
	if err != nil {
		return 0, err
	}
	for _, row := range rows {
		if err := m.submit(ctx, row); err != nil {
			logs.Cashout.Errorf("cashout monitor %s: submit tx %d: %v", m.account.Label, row.ID, err)
		}
	}
	return len(rows), nil
}

func (m *Monitor) pendingRows(ctx context.Context) ([]ledger.LedgerTransaction, error) {
	var afterID int64
	if m.account.LastFiatSubmissionID != nil {
		afterID = *m.account.LastFiatSubmissionID
	}
	return m.ledgerRepo.CRDTSince(ctx, m.pool, m.account.ID, afterID)
}

// submit builds and POSTs one payment-initiation, records the
// submission outcome, and advances the watermark regardless of
// success (spec.md §4.8 point 4 and §9 open question (a): advancing on
// error is preserved but gated by advanceOnError).
func (m *Monitor) submit(ctx context.Context, row ledger.LedgerTransaction) error {
	req := nexus.PaymentInitiation{
		UID:     row.AccountServicerReference,
		IBAN:    row.CreditorIBAN,
		BIC:     row.DebtorBIC,
		Amount:  money.Amount{Currency: row.Currency, Value: row.Amount}.String(),
		Subject: row.Subject,
		Name:    row.CreditorName,
	}

	result, submitErr := m.nexus.SubmitPaymentInitiation(ctx, m.usernameAtNexus, req)

	hasErrors := submitErr != nil || !result.Success()
	responseBody := result.Body
	if submitErr != nil {
		responseBody = submitErr.Error()
	}

	if err := m.cashoutRepo.InsertSubmission(ctx, m.pool, row.ID, time.Now().UTC(), responseBody, hasErrors); err != nil {
		return err
	}

	if hasErrors && !m.advanceOnError {
		return nil
	}

	m.account.LastFiatSubmissionID = &row.ID
	return m.ledgerRepo.UpdateLastFiatSubmission(ctx, m.pool, m.account.ID, row.ID)
}
