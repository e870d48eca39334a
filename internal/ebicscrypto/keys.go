// Package ebicscrypto implements the fixed cryptographic primitives
// EBICS H004 hard-codes: RSA key management, E002 hybrid envelope
// encryption, A006 signature verification, and the digests used to
// bind partner/bank public keys in HIA/HPB exchanges (spec.md §4.2).
package ebicscrypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
)

// KeyUsage names the three roles EBICS assigns to a subscriber's
// keypairs. Values match the ebics_subscriber_public_keys.key_usage
// check constraint.
type KeyUsage string

const (
	UsageSignature     KeyUsage = "SIGNATURE"
	UsageEncryption    KeyUsage = "ENCRYPTION"
	UsageAuthentication KeyUsage = "AUTHENTICATION"
)

// KeyBits is the RSA modulus size EBICS H004 mandates for every
// subscriber and bank keypair.
const KeyBits = 2048

// GenerateKeyPair produces a fresh RSA keypair of the mandated size.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("ebicscrypto: generate key: %w", err)
	}
	return key, nil
}

// MarshalPrivateKey encodes priv as a PKCS#8 DER document, the form
// persisted in ebics_hosts and ebics_subscribers.
func MarshalPrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("ebicscrypto: marshal private key: %w", err)
	}
	return der, nil
}

// ParsePrivateKey decodes a PKCS#8 DER document back into an RSA key.
func ParsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return rsaKey, nil
}

// MarshalPublicKey encodes pub as an X.509 SubjectPublicKeyInfo DER
// document, the form exchanged inside HPBResponseOrderData and PubKey
// elements.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("ebicscrypto: marshal public key: %w", err)
	}
	return der, nil
}

// ParsePublicKey decodes an X.509 SubjectPublicKeyInfo DER document.
func ParsePublicKey(der []byte) (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidKey
	}
	return rsaKey, nil
}

// BuildPublicKey reconstructs an RSA public key from the bare
// modulus/exponent byte pairs carried in an EBICS RSAKeyValue element
// (INI's SignaturePubKeyOrderData, HIA's HIAPubKeyOrderData). The wire
// form is never PKIX DER, so this must run before the key is handed to
// MarshalPublicKey/ParsePublicKey anywhere downstream.
func BuildPublicKey(modulus, exponent []byte) (*rsa.PublicKey, error) {
	if len(modulus) == 0 || len(exponent) == 0 {
		return nil, ErrInvalidKey
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(modulus),
		E: exponentFromBytes(exponent),
	}, nil
}

// exponentFromBytes decodes a big-endian RSA public exponent, the form
// RSAKeyValue>Exponent carries on the wire.
func exponentFromBytes(b []byte) int {
	e := 0
	for _, c := range b {
		e = e<<8 | int(c)
	}
	return e
}

// PublicKeyDigest computes the EBICS "hash of the public key", used by
// banks and subscribers to verify a counterpart's key out-of-band:
// SHA-256 over the canonical "exponent || modulus" byte form, with no
// leading zero bytes, as EBICS H004 Annex defines it.
func PublicKeyDigest(pub *rsa.PublicKey) [32]byte {
	eBytes := bigIntBytes(pub.E)
	nBytes := pub.N.Bytes()
	buf := make([]byte, 0, len(eBytes)+len(nBytes))
	buf = append(buf, eBytes...)
	buf = append(buf, nBytes...)
	return sha256.Sum256(buf)
}

func bigIntBytes(e int) []byte {
	if e == 0 {
		return []byte{0}
	}
	var out []byte
	for e > 0 {
		out = append([]byte{byte(e & 0xff)}, out...)
		e >>= 8
	}
	return out
}

// EncodePEM wraps der as a PEM block of the given type, for tooling
// that wants a human-copyable key file.
func EncodePEM(blockType string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}

// hashForSignature is the fixed hash algorithm A006 signs over.
var hashForSignature = crypto.SHA256
