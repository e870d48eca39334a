package cashout

import "fmt"

var (
	ErrNotFound          = fmt.Errorf("cashout: operation not found")
	ErrAlreadyConfirmed  = fmt.Errorf("cashout: operation already confirmed")
	ErrWrongTan          = fmt.Errorf("cashout: wrong TAN")
	ErrInstitutionalUser = fmt.Errorf("cashout: institutional accounts cannot cash out")
)
