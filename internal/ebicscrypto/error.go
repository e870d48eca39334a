package ebicscrypto

import "fmt"

var (
	ErrInvalidKey       = fmt.Errorf("ebicscrypto: invalid key material")
	ErrSignatureInvalid = fmt.Errorf("ebicscrypto: signature verification failed")
	ErrBadCiphertext    = fmt.Errorf("ebicscrypto: malformed ciphertext envelope")
	ErrUnsupportedUsage = fmt.Errorf("ebicscrypto: unsupported key usage")
)
