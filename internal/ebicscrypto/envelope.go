package ebicscrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// aesKeySize is the AES-128 key length E002 mandates for the transport
// key wrapped inside every EBICS transaction key envelope.
const aesKeySize = 16

// EncryptE002 implements the E002 hybrid scheme: plaintext is padded to
// a multiple of the AES block size with PKCS#7, encrypted under a
// freshly generated AES-128-CBC key and a zero IV (EBICS H004 fixes the
// IV at all-zero bytes, folding IV randomness into the per-message
// transport key instead), and that transport key is then wrapped with
// RSAES-PKCS1-v1.5 under the recipient's public key. Returns the
// ciphertext and the RSA-wrapped key separately, as EBICS carries them
// in different envelope elements (spec.md §4.2).
func EncryptE002(pub *rsa.PublicKey, plaintext []byte) (ciphertext, wrappedKey []byte, err error) {
	key := make([]byte, aesKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("ebicscrypto: generate transport key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("ebicscrypto: new AES cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	iv := make([]byte, aes.BlockSize)
	mode := cipher.NewCBCEncrypter(block, iv)
	ciphertext = make([]byte, len(padded))
	mode.CryptBlocks(ciphertext, padded)

	wrappedKey, err = rsa.EncryptPKCS1v15(rand.Reader, pub, key)
	if err != nil {
		return nil, nil, fmt.Errorf("ebicscrypto: wrap transport key: %w", err)
	}

	return ciphertext, wrappedKey, nil
}

// DecryptE002 reverses EncryptE002: unwraps the transport key with the
// recipient's private key, then AES-128-CBC decrypts and un-pads.
func DecryptE002(priv *rsa.PrivateKey, ciphertext, wrappedKey []byte) ([]byte, error) {
	key, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap transport key: %v", ErrBadCiphertext, err)
	}
	if len(key) != aesKeySize {
		return nil, fmt.Errorf("%w: transport key has wrong length", ErrBadCiphertext)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ebicscrypto: new AES cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block-aligned", ErrBadCiphertext)
	}

	iv := make([]byte, aes.BlockSize)
	mode := cipher.NewCBCDecrypter(block, iv)
	padded := make([]byte, len(ciphertext))
	mode.CryptBlocks(padded, ciphertext)

	return pkcs7Unpad(padded)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty padded data", ErrBadCiphertext)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, fmt.Errorf("%w: bad PKCS#7 padding", ErrBadCiphertext)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("%w: bad PKCS#7 padding", ErrBadCiphertext)
		}
	}
	return data[:len(data)-padLen], nil
}

// SignA006 produces an RSASSA-PKCS1-v1.5 signature over the SHA-256
// digest of data, the scheme EBICS H004 calls "A006".
func SignA006(priv *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, hashForSignature, digest[:])
	if err != nil {
		return nil, fmt.Errorf("ebicscrypto: sign A006: %w", err)
	}
	return sig, nil
}

// VerifyA006 checks an A006 signature against the SHA-256 digest of
// data. Returns ErrSignatureInvalid on mismatch.
func VerifyA006(pub *rsa.PublicKey, data, sig []byte) error {
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, hashForSignature, digest[:], sig); err != nil {
		return ErrSignatureInvalid
	}
	return nil
}
