package ebicsengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"

	"github.com/sandboxbank/ebicsd/internal/ebicscrypto"
)

// HostRepository persists the bank-side EBICS host identities.
type HostRepository struct{}

func NewHostRepository() *HostRepository { return &HostRepository{} }

// Get resolves a host by HostID, case-insensitively (spec.md §4.5 step 1).
func (r *HostRepository) Get(ctx context.Context, q Querier, hostID string) (*Host, error) {
	var id string
	var sigDER, encDER, authDER []byte
	row := q.QueryRow(ctx, `
		SELECT host_id, signature_priv, encryption_priv, authentication_priv
		FROM ebics_hosts WHERE lower(host_id) = lower($1)`, hostID)
	if err := row.Scan(&id, &sigDER, &encDER, &authDER); err != nil {
		if err == pgx.ErrNoRows {
			return nil, fail(CodeInvalidHost, "unknown host %s", hostID)
		}
		return nil, err
	}

	sigKey, err := ebicscrypto.ParsePrivateKey(sigDER)
	if err != nil {
		return nil, fmt.Errorf("ebicsengine: host %s signature key: %w", id, err)
	}
	encKey, err := ebicscrypto.ParsePrivateKey(encDER)
	if err != nil {
		return nil, fmt.Errorf("ebicsengine: host %s encryption key: %w", id, err)
	}
	authKey, err := ebicscrypto.ParsePrivateKey(authDER)
	if err != nil {
		return nil, fmt.Errorf("ebicsengine: host %s authentication key: %w", id, err)
	}

	return &Host{HostID: id, SignaturePriv: sigKey, EncryptionPriv: encKey, AuthPriv: authKey}, nil
}

// Insert provisions a new host with freshly generated keypairs,
// returning the host so callers can export its public keys.
func (r *HostRepository) Insert(ctx context.Context, q Querier, hostID string) (*Host, error) {
	sigKey, err := ebicscrypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	encKey, err := ebicscrypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	authKey, err := ebicscrypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	sigDER, err := ebicscrypto.MarshalPrivateKey(sigKey)
	if err != nil {
		return nil, err
	}
	encDER, err := ebicscrypto.MarshalPrivateKey(encKey)
	if err != nil {
		return nil, err
	}
	authDER, err := ebicscrypto.MarshalPrivateKey(authKey)
	if err != nil {
		return nil, err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO ebics_hosts (host_id, signature_priv, encryption_priv, authentication_priv)
		VALUES ($1,$2,$3,$4)`, strings.ToUpper(hostID), sigDER, encDER, authDER)
	if err != nil {
		return nil, fmt.Errorf("ebicsengine: insert host: %w", err)
	}

	return &Host{HostID: strings.ToUpper(hostID), SignaturePriv: sigKey, EncryptionPriv: encKey, AuthPriv: authKey}, nil
}
