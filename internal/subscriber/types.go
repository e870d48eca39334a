// Package subscriber implements the EBICS key-management state machine:
// a subscriber starts NEW, moves through PARTIALLY_INITIALIZED_INI or
// PARTIALLY_INITIALIZED_HIA once one of the two key submissions lands,
// and reaches INITIALIZED once both have (spec.md §4.2).
package subscriber

import (
	"fmt"

	"github.com/sandboxbank/ebicsd/internal/ebicscrypto"
)

// State names a subscriber's position in the INI/HIA/HPB handshake.
type State string

const (
	StateNew                State = "NEW"
	StatePartiallyInitializedINI State = "PARTIALLY_INITIALIZED_INI"
	StatePartiallyInitializedHIA State = "PARTIALLY_INITIALIZED_HIA"
	StateInitialized        State = "INITIALIZED"
)

// KeyState tracks one public key's acceptance: MISSING until submitted,
// NEW once submitted but not yet confirmed by the bank operator, and
// RELEASED once confirmed and usable for signing/encryption/auth.
type KeyState string

const (
	KeyMissing  KeyState = "MISSING"
	KeyNew      KeyState = "NEW"
	KeyReleased KeyState = "RELEASED"
)

// PublicKeyRecord is one of a subscriber's three tracked public keys.
type PublicKeyRecord struct {
	Usage     ebicscrypto.KeyUsage
	State     KeyState
	PublicKey []byte // X.509 SubjectPublicKeyInfo DER, nil until submitted
}

// Subscriber is one EBICS user of one partner at one host.
type Subscriber struct {
	ID            int64
	HostID        string
	PartnerID     string
	UserID        string
	SystemID      string
	State         State
	NextOrderID   int
	BankAccountID *int64
	Keys          map[ebicscrypto.KeyUsage]PublicKeyRecord
}

// NewSubscriber constructs a fresh NEW-state subscriber with all three
// keys MISSING.
func NewSubscriber(hostID, partnerID, userID string) *Subscriber {
	return &Subscriber{
		HostID: hostID, PartnerID: partnerID, UserID: userID,
		State: StateNew, NextOrderID: 1,
		Keys: map[ebicscrypto.KeyUsage]PublicKeyRecord{
			ebicscrypto.UsageSignature:     {Usage: ebicscrypto.UsageSignature, State: KeyMissing},
			ebicscrypto.UsageEncryption:    {Usage: ebicscrypto.UsageEncryption, State: KeyMissing},
			ebicscrypto.UsageAuthentication: {Usage: ebicscrypto.UsageAuthentication, State: KeyMissing},
		},
	}
}

// ReceiveINI records the subscriber's A006 signature key and advances
// the state machine. modulus/exponent are the bare RSAKeyValue bytes
// off the wire; they are reconstructed into a PKIX SubjectPublicKeyInfo
// DER document here so every downstream consumer can treat
// PublicKeyRecord.PublicKey uniformly as ebicscrypto.ParsePublicKey
// input (spec.md §4.2).
func (s *Subscriber) ReceiveINI(modulus, exponent []byte) error {
	if s.State == StateInitialized || s.State == StatePartiallyInitializedINI {
		return ErrAlreadyInitialized
	}
	der, err := marshalWireKey(modulus, exponent)
	if err != nil {
		return err
	}
	s.Keys[ebicscrypto.UsageSignature] = PublicKeyRecord{
		Usage: ebicscrypto.UsageSignature, State: KeyReleased, PublicKey: der,
	}
	s.advance()
	return nil
}

// ReceiveHIA records the subscriber's E002/X002 encryption and
// authentication keys and advances the state machine. Each key arrives
// as a bare modulus/exponent pair, reconstructed the same way as
// ReceiveINI.
func (s *Subscriber) ReceiveHIA(encModulus, encExponent, authModulus, authExponent []byte) error {
	if s.State == StateInitialized || s.State == StatePartiallyInitializedHIA {
		return ErrAlreadyInitialized
	}
	encDER, err := marshalWireKey(encModulus, encExponent)
	if err != nil {
		return err
	}
	authDER, err := marshalWireKey(authModulus, authExponent)
	if err != nil {
		return err
	}
	s.Keys[ebicscrypto.UsageEncryption] = PublicKeyRecord{
		Usage: ebicscrypto.UsageEncryption, State: KeyReleased, PublicKey: encDER,
	}
	s.Keys[ebicscrypto.UsageAuthentication] = PublicKeyRecord{
		Usage: ebicscrypto.UsageAuthentication, State: KeyReleased, PublicKey: authDER,
	}
	s.advance()
	return nil
}

// marshalWireKey reconstructs an RSA public key from bare
// modulus/exponent bytes and re-encodes it as PKIX DER.
func marshalWireKey(modulus, exponent []byte) ([]byte, error) {
	pub, err := ebicscrypto.BuildPublicKey(modulus, exponent)
	if err != nil {
		return nil, err
	}
	return ebicscrypto.MarshalPublicKey(pub)
}

// advance recomputes State from the current key states, following
// spec.md §4.2's staged transition: NEW -> one-of(PARTIALLY_INI,
// PARTIALLY_HIA) -> INITIALIZED once both legs have landed.
func (s *Subscriber) advance() {
	sigReady := s.Keys[ebicscrypto.UsageSignature].State == KeyReleased
	encReady := s.Keys[ebicscrypto.UsageEncryption].State == KeyReleased
	authReady := s.Keys[ebicscrypto.UsageAuthentication].State == KeyReleased

	switch {
	case sigReady && encReady && authReady:
		s.State = StateInitialized
	case sigReady:
		s.State = StatePartiallyInitializedINI
	case encReady && authReady:
		s.State = StatePartiallyInitializedHIA
	default:
		s.State = StateNew
	}
}

// Ready reports whether the subscriber may submit or receive
// transport-encrypted orders: every key must be RELEASED.
func (s *Subscriber) Ready() bool {
	return s.State == StateInitialized
}

// AllocateOrderID returns the next order id and advances the counter,
// the EBICS order-id sequence a partner's uploads/downloads consume
// (spec.md §4.2).
func (s *Subscriber) AllocateOrderID() string {
	id := s.NextOrderID
	s.NextOrderID++
	return fmt.Sprintf("%05d", id)
}
