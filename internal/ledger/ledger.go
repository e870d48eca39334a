// Package ledger implements the core double-entry posting engine (C1):
// atomic CRDT/DBIT posting, derived balances, debit-limit enforcement,
// and the "fresh transactions" outbox statements are built from
// (spec.md §4.1).
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sandboxbank/ebicsd/internal/money"
	"github.com/sandboxbank/ebicsd/internal/notify"
)

// maxSerializableRetries matches spec.md §5: "up to 10 retry attempts on
// serialization conflict."
const maxSerializableRetries = 10

// Ledger is the double-entry posting engine. Every mutating operation
// runs the whole read-modify-write cycle inside one SERIALIZABLE
// transaction, retried on conflict, per spec.md §5.
type Ledger struct {
	pool *pgxpool.Pool
	repo *Repository
	bus  notify.Bus
}

// NewLedger constructs a Ledger over an existing pgx pool, repository,
// and notification bus (the bus a Ledger publishes REGIO_TX events on
// after every posting).
func NewLedger(pool *pgxpool.Pool, repo *Repository, bus notify.Bus) *Ledger {
	return &Ledger{pool: pool, repo: repo, bus: bus}
}

// PostParams describes one double-entry wire transfer.
type PostParams struct {
	Demobank      Demobank
	DebitAccount  BankAccount
	CreditAccount BankAccount
	Subject       string
	Amount        decimal.Decimal
	Currency      string
	MsgID         string
	PmtInfID      string
	EndToEndID    string
}

// Post atomically inserts the CRDT/DBIT pair for one wire transfer,
// updates both accounts' last-transaction pointer, adds both outbox
// rows, and publishes a REGIO_TX notification for the credited
// account's label. It returns the shared accountServicerReference.
//
// Fails with ErrInsufficientFunds, ErrBadCurrency, or ErrZeroAmount
// (spec.md §4.1).
func (l *Ledger) Post(ctx context.Context, p PostParams) (string, error) {
	if !p.Amount.IsPositive() {
		return "", ErrZeroAmount
	}
	if p.Currency != p.Demobank.Currency {
		return "", ErrBadCurrency
	}

	var ref string
	err := l.withSerializableTx(ctx, func(tx pgx.Tx) error {
		ref = ""

		if err := l.debitLimitCheck(ctx, tx, p.DebitAccount, p.Amount, p.Demobank); err != nil {
			return err
		}

		reference, err := newReference()
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		crdt := LedgerTransaction{
			CreditorIBAN: p.CreditAccount.IBAN, CreditorBIC: p.CreditAccount.BIC,
			CreditorName: p.CreditAccount.Label,
			DebtorIBAN:   p.DebitAccount.IBAN, DebtorBIC: p.DebitAccount.BIC,
			DebtorName:               p.DebitAccount.Label,
			Subject:                  p.Subject,
			Amount:                   p.Amount,
			Currency:                 p.Currency,
			Timestamp:                now,
			AccountServicerReference: reference,
			MsgID:                    p.MsgID,
			PmtInfID:                 p.PmtInfID,
			EndToEndID:               p.EndToEndID,
			Direction:                CRDT,
			AccountID:                p.CreditAccount.ID,
			DemobankName:             p.Demobank.Name,
		}
		dbit := crdt
		dbit.Direction = DBIT
		dbit.AccountID = p.DebitAccount.ID

		crdtID, dbitID, err := l.repo.InsertTransactionPair(ctx, tx, crdt, dbit)
		if err != nil {
			return fmt.Errorf("ledger: insert posting: %w", err)
		}

		if err := l.repo.InsertFreshTransaction(ctx, tx, crdtID, p.CreditAccount.ID); err != nil {
			return err
		}
		if err := l.repo.InsertFreshTransaction(ctx, tx, dbitID, p.DebitAccount.ID); err != nil {
			return err
		}
		if err := l.repo.UpdateLastTransaction(ctx, tx, p.CreditAccount.ID, crdtID); err != nil {
			return err
		}
		if err := l.repo.UpdateLastTransaction(ctx, tx, p.DebitAccount.ID, dbitID); err != nil {
			return err
		}

		ref = reference
		return nil
	})
	if err != nil {
		return "", err
	}

	// Best-effort: a failure to publish must never unwind a committed
	// posting (spec.md §4.9: "publish never blocks").
	channel := notify.ChannelName(notify.DomainRegionalTx, p.CreditAccount.Label)
	_ = l.bus.Publish(ctx, channel, notify.PayloadCredit)

	return ref, nil
}

// Balance computes an account's balance. With withPending=false it is
// exactly the last statement's CLBD (or zero absent any statement).
// With withPending=true it additionally folds every transaction booked
// after that statement (spec.md §4.1).
func (l *Ledger) Balance(ctx context.Context, q Querier, account BankAccount, withPending bool) (decimal.Decimal, error) {
	last, err := l.repo.LastStatement(ctx, q, account.ID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	base := decimal.Zero
	since := time.Time{}
	if last != nil {
		base = last.BalanceCLBD
		since = last.CreationTime
	}

	if !withPending {
		return base, nil
	}

	txs, err := l.repo.TransactionsSince(ctx, q, account.ID, since)
	if err != nil {
		return decimal.Decimal{}, err
	}

	total := base
	for _, t := range txs {
		total = total.Add(t.SignedAmount())
	}
	return total, nil
}

// maxDebt returns the configured debit ceiling for an account: the
// bank's own limit for the institutional "admin" account, otherwise the
// per-user limit (spec.md §4.1).
func maxDebt(account BankAccount, demobank Demobank) decimal.Decimal {
	if account.IsAdmin() {
		return demobank.BankDebtLimit
	}
	return demobank.UsersDebtLimit
}

// debitLimitCheck rejects a posting when balance-amount would go more
// negative than -maxDebt (spec.md §4.1, §8 invariant 4): accounts may go
// negative up to the configured limit, not beyond it.
func (l *Ledger) debitLimitCheck(ctx context.Context, q Querier, account BankAccount, amount decimal.Decimal, demobank Demobank) error {
	balance, err := l.Balance(ctx, q, account, true)
	if err != nil {
		return err
	}

	resulting := balance.Sub(amount)
	if resulting.IsNegative() && resulting.Abs().GreaterThan(maxDebt(account, demobank)) {
		return ErrInsufficientFunds
	}
	return nil
}

// MaterializeStatement snapshots the account's currently fresh
// transactions into a new BankAccountStatement, renders its CAMT.053
// body via render, and clears the reported outbox rows. The caller
// supplies render so this package does not need to import the CAMT
// builder (avoiding an import cycle: camt depends on ledger's types).
func (l *Ledger) MaterializeStatement(ctx context.Context, account BankAccount,
	render func(pre, post decimal.Decimal, fresh []LedgerTransaction, at time.Time) ([]byte, error)) (BankAccountStatement, error) {

	var stmt BankAccountStatement
	err := l.withSerializableTx(ctx, func(tx pgx.Tx) error {
		pre, err := l.Balance(ctx, tx, account, false)
		if err != nil {
			return err
		}

		fresh, err := l.repo.FreshTransactions(ctx, tx, account.ID)
		if err != nil {
			return err
		}

		post := pre
		for _, t := range fresh {
			post = post.Add(t.SignedAmount())
		}

		now := time.Now().UTC()
		xmlBody, err := render(pre, post, fresh, now)
		if err != nil {
			return err
		}

		stmt = BankAccountStatement{
			AccountID:    account.ID,
			CreationTime: now,
			CamtXML:      xmlBody,
			BalanceCLBD:  post,
		}
		id, err := l.repo.InsertStatement(ctx, tx, stmt)
		if err != nil {
			return err
		}
		stmt.ID = id

		if len(fresh) > 0 {
			last := fresh[len(fresh)-1]
			if err := l.repo.ClearFreshTransactions(ctx, tx, account.ID, last.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return stmt, err
}

// Repository exposes the underlying repository for callers (order
// handlers, the cash-out monitor) that need read access outside of a
// posting transaction.
func (l *Ledger) Repository() *Repository { return l.repo }

// Pool exposes the pgx pool so callers can open their own read
// transactions without going through Post/MaterializeStatement.
func (l *Ledger) Pool() *pgxpool.Pool { return l.pool }

// withSerializableTx runs fn inside a SERIALIZABLE transaction, retrying
// up to maxSerializableRetries times on a serialization failure or
// deadlock (spec.md §5).
func (l *Ledger) withSerializableTx(ctx context.Context, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxSerializableRetries; attempt++ {
		tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("ledger: begin tx: %w", err)
		}

		err = fn(tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			if isSerializationConflict(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			if isSerializationConflict(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("ledger: commit: %w", err)
		}
		return nil
	}
	return fmt.Errorf("ledger: giving up after %d serialization conflicts: %w", maxSerializableRetries, lastErr)
}

func isSerializationConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return false
}

func newReference() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("ledger: generate reference: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// CheckStatementChain verifies the PRCD/CLBD balance-chain invariant
// (spec.md §8 invariant 3) across consecutive statements for an
// account; it is exercised by tests and available to operator tooling.
func CheckStatementChain(prev, next BankAccountStatement, fresh []LedgerTransaction) error {
	total := prev.BalanceCLBD
	for _, t := range fresh {
		total = total.Add(t.SignedAmount())
	}
	if !total.Equal(next.BalanceCLBD) {
		return fmt.Errorf("ledger: statement chain broken: want CLBD %s, got %s",
			money.PlainString(total), money.PlainString(next.BalanceCLBD))
	}
	return nil
}
