package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// Querier is satisfied by a *pgx.Conn, a pgx.Tx, or a pgxpool.Pool. Every
// repository method takes one explicitly — there is no ambient/thread
// local transaction context (spec.md §9, design note on DAO
// active-record).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Repository is the persistence boundary for the ledger. All methods
// operate against the caller-supplied Querier, which is normally a
// pgx.Tx opened by Ledger.Post/MaterializeStatement so that the whole operation runs
// inside one SERIALIZABLE transaction.
type Repository struct{}

// NewRepository constructs a Repository. It holds no state: every method
// receives its Querier explicitly.
func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) GetDemobank(ctx context.Context, q Querier, name string) (Demobank, error) {
	var d Demobank
	row := q.QueryRow(ctx, `
		SELECT name, currency, bank_debt_limit, users_debt_limit,
		       fiat_currency, sell_rate, sell_fee, advance_watermark_on_error
		FROM demobank_configs WHERE name = $1`, name)

	if err := row.Scan(&d.Name, &d.Currency, &d.BankDebtLimit, &d.UsersDebtLimit,
		&d.FiatCurrency, &d.SellRate, &d.SellFee, &d.AdvanceWatermarkOnError); err != nil {
		if err == pgx.ErrNoRows {
			return Demobank{}, ErrDemobankNotFound
		}
		return Demobank{}, err
	}
	return d, nil
}

func (r *Repository) GetAccountByLabel(ctx context.Context, q Querier, demobank, label string) (BankAccount, error) {
	return r.scanAccount(q.QueryRow(ctx, `
		SELECT id, iban, bic, label, owner_username, demobank_name,
		       last_transaction_id, last_fiat_submission_id
		FROM bank_accounts WHERE demobank_name = $1 AND label = $2`, demobank, label))
}

func (r *Repository) GetAccountByIBAN(ctx context.Context, q Querier, demobank, iban string) (BankAccount, error) {
	return r.scanAccount(q.QueryRow(ctx, `
		SELECT id, iban, bic, label, owner_username, demobank_name,
		       last_transaction_id, last_fiat_submission_id
		FROM bank_accounts WHERE demobank_name = $1 AND iban = $2`, demobank, iban))
}

// FindAccountByIBAN looks up an account by IBAN alone (the column is
// globally unique), used when the caller does not yet know which
// demobank the IBAN belongs to — e.g. resolving a pain.001 debtor
// before its demobank is known (spec.md §4.6).
func (r *Repository) FindAccountByIBAN(ctx context.Context, q Querier, iban string) (BankAccount, error) {
	return r.scanAccount(q.QueryRow(ctx, `
		SELECT id, iban, bic, label, owner_username, demobank_name,
		       last_transaction_id, last_fiat_submission_id
		FROM bank_accounts WHERE iban = $1`, iban))
}

func (r *Repository) GetAccountByID(ctx context.Context, q Querier, id int64) (BankAccount, error) {
	return r.scanAccount(q.QueryRow(ctx, `
		SELECT id, iban, bic, label, owner_username, demobank_name,
		       last_transaction_id, last_fiat_submission_id
		FROM bank_accounts WHERE id = $1`, id))
}

func (r *Repository) scanAccount(row pgx.Row) (BankAccount, error) {
	var a BankAccount
	if err := row.Scan(&a.ID, &a.IBAN, &a.BIC, &a.Label, &a.OwnerUsername,
		&a.DemobankName, &a.LastTransactionID, &a.LastFiatSubmissionID); err != nil {
		if err == pgx.ErrNoRows {
			return BankAccount{}, ErrAccountNotFound
		}
		return BankAccount{}, err
	}
	return a, nil
}

// InsertTransactionPair inserts the CRDT and DBIT legs of one posting
// and returns their assigned ids, in (crdt, dbit) order.
func (r *Repository) InsertTransactionPair(ctx context.Context, q Querier, crdt, dbit LedgerTransaction) (int64, int64, error) {
	var crdtID, dbitID int64

	err := q.QueryRow(ctx, `
		INSERT INTO bank_account_transactions
			(creditor_iban, creditor_bic, creditor_name, debtor_iban, debtor_bic,
			 debtor_name, subject, amount, currency, booked_at,
			 account_servicer_reference, msg_id, pmt_info_id, end_to_end_id, direction,
			 account_id, demobank_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id`,
		crdt.CreditorIBAN, crdt.CreditorBIC, crdt.CreditorName, crdt.DebtorIBAN, crdt.DebtorBIC,
		crdt.DebtorName, crdt.Subject, crdt.Amount, crdt.Currency, crdt.Timestamp,
		crdt.AccountServicerReference, crdt.MsgID, crdt.PmtInfID, crdt.EndToEndID, crdt.Direction,
		crdt.AccountID, crdt.DemobankName,
	).Scan(&crdtID)
	if err != nil {
		return 0, 0, err
	}

	err = q.QueryRow(ctx, `
		INSERT INTO bank_account_transactions
			(creditor_iban, creditor_bic, creditor_name, debtor_iban, debtor_bic,
			 debtor_name, subject, amount, currency, booked_at,
			 account_servicer_reference, msg_id, pmt_info_id, end_to_end_id, direction,
			 account_id, demobank_name)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING id`,
		dbit.CreditorIBAN, dbit.CreditorBIC, dbit.CreditorName, dbit.DebtorIBAN, dbit.DebtorBIC,
		dbit.DebtorName, dbit.Subject, dbit.Amount, dbit.Currency, dbit.Timestamp,
		dbit.AccountServicerReference, dbit.MsgID, dbit.PmtInfID, dbit.EndToEndID, dbit.Direction,
		dbit.AccountID, dbit.DemobankName,
	).Scan(&dbitID)
	if err != nil {
		return 0, 0, err
	}

	return crdtID, dbitID, nil
}

func (r *Repository) InsertFreshTransaction(ctx context.Context, q Querier, transactionID, accountID int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO bank_account_fresh_transactions (transaction_id, account_id)
		VALUES ($1, $2)`, transactionID, accountID)
	return err
}

func (r *Repository) ClearFreshTransactions(ctx context.Context, q Querier, accountID int64, uptoTransactionID int64) error {
	_, err := q.Exec(ctx, `
		DELETE FROM bank_account_fresh_transactions
		WHERE account_id = $1 AND transaction_id <= $2`, accountID, uptoTransactionID)
	return err
}

func (r *Repository) UpdateLastTransaction(ctx context.Context, q Querier, accountID, transactionID int64) error {
	_, err := q.Exec(ctx, `
		UPDATE bank_accounts SET last_transaction_id = $2 WHERE id = $1`,
		accountID, transactionID)
	return err
}

func (r *Repository) UpdateLastFiatSubmission(ctx context.Context, q Querier, accountID, transactionID int64) error {
	_, err := q.Exec(ctx, `
		UPDATE bank_accounts SET last_fiat_submission_id = $2 WHERE id = $1`,
		accountID, transactionID)
	return err
}

// LastStatement returns the most recently created statement for an
// account, or nil if none exists yet.
func (r *Repository) LastStatement(ctx context.Context, q Querier, accountID int64) (*BankAccountStatement, error) {
	row := q.QueryRow(ctx, `
		SELECT id, account_id, created_at, camt_xml, balance_clbd
		FROM bank_account_statements
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, accountID)

	var s BankAccountStatement
	if err := row.Scan(&s.ID, &s.AccountID, &s.CreationTime, &s.CamtXML, &s.BalanceCLBD); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *Repository) StatementsInRange(ctx context.Context, q Querier, accountID int64, start, end time.Time) ([]BankAccountStatement, error) {
	rows, err := q.Query(ctx, `
		SELECT id, account_id, created_at, camt_xml, balance_clbd
		FROM bank_account_statements
		WHERE account_id = $1 AND created_at BETWEEN $2 AND $3
		ORDER BY created_at ASC, id ASC`, accountID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BankAccountStatement
	for rows.Next() {
		var s BankAccountStatement
		if err := rows.Scan(&s.ID, &s.AccountID, &s.CreationTime, &s.CamtXML, &s.BalanceCLBD); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) InsertStatement(ctx context.Context, q Querier, s BankAccountStatement) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO bank_account_statements (account_id, created_at, camt_xml, balance_clbd)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, s.AccountID, s.CreationTime, s.CamtXML, s.BalanceCLBD).Scan(&id)
	return id, err
}

// TransactionsSince returns every transaction on accountID with
// timestamp strictly after `since`, ordered chronologically — the fold
// set used by Balance(withPending=true).
func (r *Repository) TransactionsSince(ctx context.Context, q Querier, accountID int64, since time.Time) ([]LedgerTransaction, error) {
	return r.queryTransactions(ctx, q, `
		SELECT id, creditor_iban, creditor_bic, creditor_name, debtor_iban, debtor_bic,
		       debtor_name, subject, amount, currency, booked_at,
		       account_servicer_reference, msg_id, pmt_info_id, end_to_end_id, direction,
		       account_id, demobank_name
		FROM bank_account_transactions
		WHERE account_id = $1 AND booked_at > $2
		ORDER BY booked_at ASC, id ASC`, accountID, since)
}

// FreshTransactions returns the not-yet-reported transactions for an
// account, ordered chronologically — used by C52/C53 (spec.md §4.6/4.7).
func (r *Repository) FreshTransactions(ctx context.Context, q Querier, accountID int64) ([]LedgerTransaction, error) {
	return r.queryTransactions(ctx, q, `
		SELECT t.id, t.creditor_iban, t.creditor_bic, t.creditor_name, t.debtor_iban, t.debtor_bic,
		       t.debtor_name, t.subject, t.amount, t.currency, t.booked_at,
		       t.account_servicer_reference, t.msg_id, t.pmt_info_id, t.end_to_end_id, t.direction,
		       t.account_id, t.demobank_name
		FROM bank_account_transactions t
		JOIN bank_account_fresh_transactions f ON f.transaction_id = t.id
		WHERE f.account_id = $1
		ORDER BY t.booked_at ASC, t.id ASC`, accountID)
}

// CRDTSince returns CRDT rows on accountID with id > afterID, ascending —
// the watermark query the cash-out monitor polls (spec.md §4.8).
func (r *Repository) CRDTSince(ctx context.Context, q Querier, accountID, afterID int64) ([]LedgerTransaction, error) {
	return r.queryTransactions(ctx, q, `
		SELECT id, creditor_iban, creditor_bic, creditor_name, debtor_iban, debtor_bic,
		       debtor_name, subject, amount, currency, booked_at,
		       account_servicer_reference, msg_id, pmt_info_id, end_to_end_id, direction,
		       account_id, demobank_name
		FROM bank_account_transactions
		WHERE account_id = $1 AND direction = 'CRDT' AND id > $2
		ORDER BY id ASC`, accountID, afterID)
}

// TransactionByPmtInfID locates a previously-posted leg with the given
// pain.001 PmtInfId, used to make CCT intake idempotent (spec.md §4.6).
func (r *Repository) TransactionByPmtInfID(ctx context.Context, q Querier, pmtInfID string) (*LedgerTransaction, error) {
	txs, err := r.queryTransactions(ctx, q, `
		SELECT id, creditor_iban, creditor_bic, creditor_name, debtor_iban, debtor_bic,
		       debtor_name, subject, amount, currency, booked_at,
		       account_servicer_reference, msg_id, pmt_info_id, end_to_end_id, direction,
		       account_id, demobank_name
		FROM bank_account_transactions
		WHERE pmt_info_id = $1
		LIMIT 1`, pmtInfID)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return &txs[0], nil
}

func (r *Repository) queryTransactions(ctx context.Context, q Querier, sql string, args ...interface{}) ([]LedgerTransaction, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerTransaction
	for rows.Next() {
		var t LedgerTransaction
		if err := rows.Scan(&t.ID, &t.CreditorIBAN, &t.CreditorBIC, &t.CreditorName,
			&t.DebtorIBAN, &t.DebtorBIC, &t.DebtorName, &t.Subject, &t.Amount, &t.Currency,
			&t.Timestamp, &t.AccountServicerReference, &t.MsgID, &t.PmtInfID, &t.EndToEndID,
			&t.Direction, &t.AccountID, &t.DemobankName); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
