package subscriber

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/sandboxbank/ebicsd/internal/ebicscrypto"
)

// Querier mirrors internal/ledger's explicit-transaction idiom: every
// method takes its database handle as a parameter instead of holding
// one as field state.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Repository persists Subscriber records and their per-usage keys.
type Repository struct{}

func NewRepository() *Repository { return &Repository{} }

// Get loads a subscriber by its natural key (host, partner, user),
// including all three PublicKeyRecords.
func (r *Repository) Get(ctx context.Context, q Querier, hostID, partnerID, userID string) (*Subscriber, error) {
	var s Subscriber
	var systemID *string
	var bankAccountID *int64

	row := q.QueryRow(ctx, `
		SELECT id, host_id, partner_id, user_id, system_id, state, next_order_id, bank_account_id
		FROM ebics_subscribers
		WHERE host_id = $1 AND partner_id = $2 AND user_id = $3`, hostID, partnerID, userID)

	if err := row.Scan(&s.ID, &s.HostID, &s.PartnerID, &s.UserID, &systemID, &s.State, &s.NextOrderID, &bankAccountID); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("subscriber: get: %w", err)
	}
	if systemID != nil {
		s.SystemID = *systemID
	}
	s.BankAccountID = bankAccountID

	keys, err := r.keys(ctx, q, s.ID)
	if err != nil {
		return nil, err
	}
	s.Keys = keys

	return &s, nil
}

func (r *Repository) keys(ctx context.Context, q Querier, subscriberID int64) (map[ebicscrypto.KeyUsage]PublicKeyRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT key_usage, key_state, public_key
		FROM ebics_subscriber_public_keys
		WHERE subscriber_id = $1`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("subscriber: load keys: %w", err)
	}
	defer rows.Close()

	out := map[ebicscrypto.KeyUsage]PublicKeyRecord{
		ebicscrypto.UsageSignature:      {Usage: ebicscrypto.UsageSignature, State: KeyMissing},
		ebicscrypto.UsageEncryption:     {Usage: ebicscrypto.UsageEncryption, State: KeyMissing},
		ebicscrypto.UsageAuthentication: {Usage: ebicscrypto.UsageAuthentication, State: KeyMissing},
	}
	for rows.Next() {
		var usage ebicscrypto.KeyUsage
		var state KeyState
		var pub []byte
		if err := rows.Scan(&usage, &state, &pub); err != nil {
			return nil, err
		}
		out[usage] = PublicKeyRecord{Usage: usage, State: state, PublicKey: pub}
	}
	return out, rows.Err()
}

// Insert creates a new NEW-state subscriber row (and its three MISSING
// key rows).
func (r *Repository) Insert(ctx context.Context, q Querier, s *Subscriber) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO ebics_subscribers (host_id, partner_id, user_id, system_id, state, next_order_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`, s.HostID, s.PartnerID, s.UserID, nullIfEmpty(s.SystemID), s.State, s.NextOrderID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("subscriber: insert: %w", err)
	}

	for usage, rec := range s.Keys {
		if _, err := q.Exec(ctx, `
			INSERT INTO ebics_subscriber_public_keys (subscriber_id, key_usage, key_state, public_key)
			VALUES ($1, $2, $3, $4)`, id, usage, rec.State, rec.PublicKey); err != nil {
			return 0, fmt.Errorf("subscriber: insert key %s: %w", usage, err)
		}
	}

	return id, nil
}

// Save persists a subscriber's current state, order-id counter, and
// key records after a ReceiveINI/ReceiveHIA transition.
func (r *Repository) Save(ctx context.Context, q Querier, s *Subscriber) error {
	_, err := q.Exec(ctx, `
		UPDATE ebics_subscribers
		SET state = $2, next_order_id = $3, bank_account_id = $4
		WHERE id = $1`, s.ID, s.State, s.NextOrderID, s.BankAccountID)
	if err != nil {
		return fmt.Errorf("subscriber: save: %w", err)
	}

	for usage, rec := range s.Keys {
		if _, err := q.Exec(ctx, `
			UPDATE ebics_subscriber_public_keys
			SET key_state = $3, public_key = $4
			WHERE subscriber_id = $1 AND key_usage = $2`, s.ID, usage, rec.State, rec.PublicKey); err != nil {
			return fmt.Errorf("subscriber: save key %s: %w", usage, err)
		}
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// SubscriberSnapshot is a JSON-friendly view used by the admin control
// plane's DescribeSubscriber RPC.
type SubscriberSnapshot struct {
	HostID    string `json:"host_id"`
	PartnerID string `json:"partner_id"`
	UserID    string `json:"user_id"`
	State     string `json:"state"`
}

func (s *Subscriber) Snapshot() ([]byte, error) {
	return json.Marshal(SubscriberSnapshot{
		HostID: s.HostID, PartnerID: s.PartnerID, UserID: s.UserID, State: string(s.State),
	})
}
