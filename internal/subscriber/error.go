package subscriber

import "fmt"

var (
	ErrNotFound           = fmt.Errorf("subscriber: not found")
	ErrAlreadyInitialized = fmt.Errorf("subscriber: already initialized")
	ErrKeyNotReady        = fmt.Errorf("subscriber: required key not yet released")
	ErrUnexpectedState    = fmt.Errorf("subscriber: order not valid in current state")
)
