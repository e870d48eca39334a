package cashout

import (
	"context"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// Querier mirrors internal/ledger's explicit-transaction idiom.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Repository persists cashout_operations and cashout_submissions.
type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

func (r *Repository) Insert(ctx context.Context, q Querier, op Operation) error {
	_, err := q.Exec(ctx, `
		INSERT INTO cashout_operations
			(uuid, account_username, amount_debit, amount_credit, rate, fee, subject,
			 created_at, confirmation_time, tan_channel, cashout_address, tan, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		op.UUID, op.AccountUsername, op.AmountDebit, op.AmountCredit, op.Rate, op.Fee, op.Subject,
		op.CreatedAt, op.ConfirmationTime, op.TanChannel, op.CashoutAddress, op.Tan, op.Status)
	return err
}

func (r *Repository) Get(ctx context.Context, q Querier, uuid string) (*Operation, error) {
	row := q.QueryRow(ctx, `
		SELECT uuid, account_username, amount_debit, amount_credit, rate, fee, subject,
		       created_at, confirmation_time, tan_channel, cashout_address, tan, status
		FROM cashout_operations WHERE uuid = $1`, uuid)

	var op Operation
	var tanChannel, status string
	if err := row.Scan(&op.UUID, &op.AccountUsername, &op.AmountDebit, &op.AmountCredit,
		&op.Rate, &op.Fee, &op.Subject, &op.CreatedAt, &op.ConfirmationTime,
		&tanChannel, &op.CashoutAddress, &op.Tan, &status); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	op.TanChannel = TanChannel(tanChannel)
	op.Status = Status(status)
	return &op, nil
}

func (r *Repository) Confirm(ctx context.Context, q Querier, uuid string, at time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE cashout_operations SET status = $2, confirmation_time = $3 WHERE uuid = $1`,
		uuid, StatusConfirmed, at)
	return err
}

func (r *Repository) Delete(ctx context.Context, q Querier, uuid string) error {
	_, err := q.Exec(ctx, `DELETE FROM cashout_operations WHERE uuid = $1`, uuid)
	return err
}

// InsertSubmission records one Nexus submission attempt for a CRDT
// ledger row. Unique on transaction_id — at-most-once per row.
func (r *Repository) InsertSubmission(ctx context.Context, q Querier, transactionID int64, at time.Time, responseBody string, hasErrors bool) error {
	_, err := q.Exec(ctx, `
		INSERT INTO cashout_submissions (transaction_id, submitted_at, response_body, has_errors)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (transaction_id) DO NOTHING`, transactionID, at, responseBody, hasErrors)
	return err
}
