// Package ebicsengine implements the EBICS H004 request dispatcher: the
// root-element-driven branch into key-management or order processing,
// and the three-phase (INITIALISATION/TRANSFER/RECEIPT) state machine
// shared by every download and upload order (spec.md §4.5).
package ebicsengine

import (
	"context"
	"crypto/rsa"
)

// Host is one EBICS host (bank side) identity: the three RSA keypairs
// the sandbox uses to decrypt upload signature data, authenticate
// responses, and (rarely) sign order data of its own.
type Host struct {
	HostID         string
	SignaturePriv  *rsa.PrivateKey
	EncryptionPriv *rsa.PrivateKey
	AuthPriv       *rsa.PrivateKey
}

// DownloadTransaction is the in-flight record for a download order,
// created at INITIALISATION and consumed segment-by-segment during
// TRANSFER (spec.md §4.5).
type DownloadTransaction struct {
	TransactionID    string
	OrderType        string
	NumSegments      int
	SegmentSize      int
	EncodedResponse  string // full Base64(E002(zlib(orderData)))
	TransactionKeyEnc []byte
	ReceiptReceived  bool
}

// UploadTransaction is the in-flight record for an upload order. Only
// single-segment uploads are actually completed by this sandbox (spec.md
// §4.5); larger ones park here until rejected.
type UploadTransaction struct {
	TransactionID     string
	OrderType         string
	OrderID           string
	NumSegments       int
	LastSeenSegment   int
	TransactionKeyEnc []byte
}

// OrderSignature is one subscriber's A006 signature over one order,
// recorded from UserSignatureData at upload-init time.
type OrderSignature struct {
	OrderID   string
	OrderType string
	PartnerID string
	UserID    string
	Signature []byte
}

// OrderHandler builds download order-data payloads and consumes
// completed upload payloads. internal/orders implements this so the
// engine never imports the ledger/camt/subscriber packages directly
// (spec.md §4.6, the C6 order handlers).
type OrderHandler interface {
	// BuildDownload returns the plaintext order-data XML for orderType
	// scoped to the given subscriber, before zlib/E002/Base64 wrapping.
	BuildDownload(ctx context.Context, hostID, partnerID, userID, orderType string, params OrderParams) ([]byte, error)

	// ConsumeUpload processes a fully reassembled, decrypted, inflated,
	// signature-verified upload payload.
	ConsumeUpload(ctx context.Context, hostID, partnerID, userID, orderType string, payload []byte) error
}

// OrderParams carries the optional date-range parameters a C52/C53
// request may specify (spec.md §4.6).
type OrderParams struct {
	Start string
	End   string
}
