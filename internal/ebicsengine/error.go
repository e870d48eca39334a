package ebicsengine

import "fmt"

// Code is an EBICS 6-digit return code, reused directly from the XML
// codec's ReturnCode constants at the protocol boundary.
type Code string

const (
	CodeInvalidUserOrState Code = "091002"
	CodeNoData             Code = "090005"
	CodeInvalidXML          Code = "091010"
	CodeInvalidHost         Code = "091011"
	CodeAuthFailed          Code = "091302"
	CodeUnsupported         Code = "091116"
)

// ProtocolError carries an EBICS return code alongside the underlying
// Go error, so handlers can translate failures into the right
// EbicsResponse without string-matching.
type ProtocolError struct {
	Code Code
	Err  error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("%s: %v", e.Code, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

func fail(code Code, format string, args ...interface{}) error {
	return &ProtocolError{Code: code, Err: fmt.Errorf(format, args...)}
}
