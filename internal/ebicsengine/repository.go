package ebicsengine

import (
	"context"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// Querier mirrors the explicit-transaction idiom shared across this
// module's repositories (internal/ledger, internal/subscriber).
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Repository persists download/upload transaction state and per-order
// signatures.
type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

func (r *Repository) InsertDownload(ctx context.Context, q Querier, t DownloadTransaction) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ebics_download_transactions
			(transaction_id, order_type, num_segments, segment_size, encoded_response, transaction_key_enc, receipt_received)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		t.TransactionID, t.OrderType, t.NumSegments, t.SegmentSize, t.EncodedResponse, t.TransactionKeyEnc, t.ReceiptReceived)
	if err != nil {
		return fmt.Errorf("ebicsengine: insert download transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetDownload(ctx context.Context, q Querier, transactionID string) (*DownloadTransaction, error) {
	var t DownloadTransaction
	row := q.QueryRow(ctx, `
		SELECT transaction_id, order_type, num_segments, segment_size, encoded_response, transaction_key_enc, receipt_received
		FROM ebics_download_transactions WHERE lower(transaction_id) = lower($1)`, transactionID)
	if err := row.Scan(&t.TransactionID, &t.OrderType, &t.NumSegments, &t.SegmentSize,
		&t.EncodedResponse, &t.TransactionKeyEnc, &t.ReceiptReceived); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fail(CodeNoData, "unknown download transaction %s", transactionID)
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repository) MarkDownloadReceipt(ctx context.Context, q Querier, transactionID string, received bool) error {
	_, err := q.Exec(ctx, `
		UPDATE ebics_download_transactions SET receipt_received = $2
		WHERE lower(transaction_id) = lower($1)`, transactionID, received)
	return err
}

func (r *Repository) InsertUpload(ctx context.Context, q Querier, t UploadTransaction) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ebics_upload_transactions
			(transaction_id, order_type, order_id, num_segments, last_seen_segment, transaction_key_enc)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		t.TransactionID, t.OrderType, t.OrderID, t.NumSegments, t.LastSeenSegment, t.TransactionKeyEnc)
	if err != nil {
		return fmt.Errorf("ebicsengine: insert upload transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetUpload(ctx context.Context, q Querier, transactionID string) (*UploadTransaction, error) {
	var t UploadTransaction
	row := q.QueryRow(ctx, `
		SELECT transaction_id, order_type, order_id, num_segments, last_seen_segment, transaction_key_enc
		FROM ebics_upload_transactions WHERE lower(transaction_id) = lower($1)`, transactionID)
	if err := row.Scan(&t.TransactionID, &t.OrderType, &t.OrderID, &t.NumSegments,
		&t.LastSeenSegment, &t.TransactionKeyEnc); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fail(CodeNoData, "unknown upload transaction %s", transactionID)
		}
		return nil, err
	}
	return &t, nil
}

func (r *Repository) InsertUploadChunk(ctx context.Context, q Querier, transactionID string, index int, data []byte) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ebics_upload_transaction_chunks (transaction_id, chunk_index, chunk_data)
		VALUES ($1, $2, $3)`, transactionID, index, data)
	return err
}

func (r *Repository) InsertOrderSignature(ctx context.Context, q Querier, sig OrderSignature) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ebics_order_signatures (order_id, order_type, partner_id, user_id, signature)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (order_id, order_type, user_id) DO UPDATE SET signature = EXCLUDED.signature`,
		sig.OrderID, sig.OrderType, sig.PartnerID, sig.UserID, sig.Signature)
	return err
}

func (r *Repository) GetOrderSignature(ctx context.Context, q Querier, orderID, orderType, userID string) (*OrderSignature, error) {
	var sig OrderSignature
	row := q.QueryRow(ctx, `
		SELECT order_id, order_type, partner_id, user_id, signature
		FROM ebics_order_signatures WHERE order_id = $1 AND order_type = $2 AND user_id = $3`,
		orderID, orderType, userID)
	if err := row.Scan(&sig.OrderID, &sig.OrderType, &sig.PartnerID, &sig.UserID, &sig.Signature); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fail(CodeNoData, "no stored signature for order %s/%s/%s", orderID, orderType, userID)
		}
		return nil, err
	}
	return &sig, nil
}
