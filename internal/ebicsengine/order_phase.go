package ebicsengine

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/sandboxbank/ebicsd/internal/ebicscrypto"
	"github.com/sandboxbank/ebicsd/internal/ebicsxml"
	"github.com/sandboxbank/ebicsd/internal/subscriber"
)

// handleOrder implements spec.md §4.5 step 1-4 for the authenticated
// ebicsRequest envelope: resolve context, verify the auth signature,
// branch on transaction phase, sign and return.
func (e *Engine) handleOrder(ctx context.Context, req *ebicsxml.Request) (*ebicsxml.Response, error) {
	host, err := e.hosts.Get(ctx, e.pool, req.Header.Static.HostID)
	if err != nil {
		return nil, err
	}

	sub, err := e.resolveSubscriber(ctx, req)
	if err != nil {
		return nil, err
	}
	if !sub.Ready() {
		return nil, fail(CodeInvalidUserOrState, "ebicsengine: subscriber %s not INITIALIZED", sub.UserID)
	}

	if err := e.verifyAuthSignature(sub, req); err != nil {
		return nil, err
	}

	var resp *ebicsxml.Response
	switch req.Header.Mutable.TransactionPhase {
	case ebicsxml.PhaseInitialisation:
		if req.Header.Static.NumSegments != nil {
			resp, err = e.uploadInit(ctx, host, sub, req)
		} else {
			resp, err = e.downloadInit(ctx, host, sub, req)
		}
	case ebicsxml.PhaseTransfer:
		resp, err = e.transfer(ctx, host, sub, req)
	case ebicsxml.PhaseReceipt:
		resp, err = e.receipt(ctx, req)
	default:
		err = fail(CodeInvalidXML, "ebicsengine: unknown transaction phase %s", req.Header.Mutable.TransactionPhase)
	}
	if err != nil {
		return nil, err
	}

	if sigErr := e.signResponse(host, resp); sigErr != nil {
		return nil, sigErr
	}
	return resp, nil
}

// resolveSubscriber locates the subscriber by the (partnerID, userID)
// pair named in the request's static header, in every phase. It does
// not look the subscriber up by transactionID and does not consider a
// systemID: a request naming neither partner nor user is rejected with
// 091002.
func (e *Engine) resolveSubscriber(ctx context.Context, req *ebicsxml.Request) (*subscriber.Subscriber, error) {
	if req.Header.Static.PartnerID != "" || req.Header.Static.UserID != "" {
		sub, err := e.subs.Get(ctx, e.pool, req.Header.Static.HostID, req.Header.Static.PartnerID, req.Header.Static.UserID)
		if err != nil {
			return nil, fail(CodeInvalidUserOrState, "ebicsengine: %v", err)
		}
		return sub, nil
	}
	return nil, fail(CodeInvalidUserOrState, "ebicsengine: request names no partner/user and no resolvable transaction")
}

// verifyAuthSignature checks the envelope's AuthSignature against the
// subscriber's authentication public key. The signed content is the
// canonical header bytes; a production EBICS stack uses XMLDSig
// exclusive canonicalization, elided here since this sandbox need only
// exercise the same A006/RSA verification path (spec.md §4.5 step 2).
func (e *Engine) verifyAuthSignature(sub *subscriber.Subscriber, req *ebicsxml.Request) error {
	return verifyAuthSignatureAgainst(sub, signedContent(req), req.AuthSignature)
}

// verifyAuthSignatureAgainst checks sig over signed against sub's
// authentication public key, the A006 check every authenticated
// request (ebicsRequest and HPB alike) must pass (spec.md §4.4,
// §4.5 step 2).
func verifyAuthSignatureAgainst(sub *subscriber.Subscriber, signed, sig []byte) error {
	authRec := sub.Keys[ebicscrypto.UsageAuthentication]
	authKey, err := ebicscrypto.ParsePublicKey(authRec.PublicKey)
	if err != nil {
		return fail(CodeAuthFailed, "ebicsengine: subscriber authentication key: %v", err)
	}
	if verr := ebicscrypto.VerifyA006(authKey, signed, sig); verr != nil {
		return fail(CodeAuthFailed, "ebicsengine: %v", verr)
	}
	return nil
}

func signedContent(req *ebicsxml.Request) []byte {
	return []byte(req.Header.Static.HostID + req.Header.Static.PartnerID + req.Header.Static.UserID +
		req.Header.Static.TransactionID + string(req.Header.Mutable.TransactionPhase))
}

// signedHPBContent mirrors signedContent for NoPubKeyDigestsRequest,
// which carries no TransactionID/phase of its own.
func signedHPBContent(req *ebicsxml.NoPubKeyDigestsRequest) []byte {
	return []byte(req.Header.HostID + req.Header.PartnerID + req.Header.UserID)
}

// signResponse computes AuthSignature over the same canonical content
// the request used, this time under the host's authentication key
// (spec.md §4.5 step 4).
func (e *Engine) signResponse(host *Host, resp *ebicsxml.Response) error {
	content := []byte(resp.Header.Static.TransactionID + string(resp.Header.Mutable.TransactionPhase))
	sig, err := ebicscrypto.SignA006(host.AuthPriv, content)
	if err != nil {
		return err
	}
	resp.AuthSignature = sig
	return nil
}

// downloadInit builds the order-data payload via the registered
// OrderHandler, wraps it (zlib -> E002 -> Base64), segments it, and
// persists an EbicsDownloadTransaction (spec.md §4.5 step 3,
// INITIALISATION, download branch).
func (e *Engine) downloadInit(ctx context.Context, host *Host, sub *subscriber.Subscriber, req *ebicsxml.Request) (*ebicsxml.Response, error) {
	if req.Header.Static.OrderDetails == nil {
		return nil, fail(CodeInvalidXML, "ebicsengine: download init missing OrderDetails")
	}
	orderType := req.Header.Static.OrderDetails.OrderType

	encRec := sub.Keys[ebicscrypto.UsageEncryption]
	subEncKey, err := ebicscrypto.ParsePublicKey(encRec.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("ebicsengine: subscriber encryption key: %w", err)
	}

	params := OrderParams{Start: req.Header.Static.OrderDetails.StartDate, End: req.Header.Static.OrderDetails.EndDate}
	plain, err := e.handler.BuildDownload(ctx, host.HostID, sub.PartnerID, sub.UserID, orderType, params)
	if err != nil {
		return nil, err
	}

	deflated, err := ebicsxml.DeflateOrderData(plain)
	if err != nil {
		return nil, err
	}
	ciphertext, wrappedKey, err := ebicscrypto.EncryptE002(subEncKey, deflated)
	if err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(ciphertext)

	transactionID, err := newTransactionID()
	if err != nil {
		return nil, err
	}
	numSegments := NumSegments(len(encoded))

	if err := e.txs.InsertDownload(ctx, e.pool, DownloadTransaction{
		TransactionID:     transactionID,
		OrderType:         orderType,
		NumSegments:       numSegments,
		SegmentSize:       SegmentSize,
		EncodedResponse:   encoded,
		TransactionKeyEnc: wrappedKey,
	}); err != nil {
		return nil, err
	}

	first, err := Segment([]byte(encoded), 1, numSegments)
	if err != nil {
		return nil, err
	}

	resp := ebicsxml.NewAcknowledgementResponse(ebicsxml.PhaseInitialisation, ebicsxml.CodeOK, "[EBICS_OK] OK")
	resp.Header.Static.TransactionID = transactionID
	resp.Header.Static.NumSegments = &numSegments
	resp.Body.DataTransfer = &ebicsxml.DataTransferResponse{
		TransactionKey: wrappedKey,
		OrderData:      first,
		ReturnCode:     ebicsxml.CodeOK,
		ReportText:     "[EBICS_OK] OK",
	}
	return resp, nil
}

// uploadInit allocates a transaction id and order id, decrypts and
// inflates the accompanying UserSignatureData, records per-signature
// rows, and persists an EbicsUploadTransaction (spec.md §4.5 step 3,
// INITIALISATION, upload branch).
func (e *Engine) uploadInit(ctx context.Context, host *Host, sub *subscriber.Subscriber, req *ebicsxml.Request) (*ebicsxml.Response, error) {
	if req.Header.Static.OrderDetails == nil {
		return nil, fail(CodeInvalidXML, "ebicsengine: upload init missing OrderDetails")
	}
	orderType := req.Header.Static.OrderDetails.OrderType

	orderID := sub.AllocateOrderID()
	if err := e.subs.Save(ctx, e.pool, sub); err != nil {
		return nil, err
	}

	if req.Body.DataTransfer == nil || len(req.Body.DataTransfer.TransactionKey) == 0 {
		return nil, fail(CodeInvalidXML, "ebicsengine: upload init missing transaction key")
	}

	signatureCiphertext := req.Body.DataTransfer.OrderData
	plain, err := ebicscrypto.DecryptE002(host.EncryptionPriv, signatureCiphertext, req.Body.DataTransfer.TransactionKey)
	if err != nil {
		return nil, fail(CodeAuthFailed, "ebicsengine: decrypt signature data: %v", err)
	}
	inflated, err := ebicsxml.InflateOrderData(plain)
	if err != nil {
		return nil, fail(CodeInvalidXML, "ebicsengine: inflate signature data: %v", err)
	}

	var sigData ebicsxml.UserSignatureData
	if err := xml.Unmarshal(inflated, &sigData); err != nil {
		return nil, fail(CodeInvalidXML, "ebicsengine: parse UserSignatureData: %v", err)
	}

	if err := e.txs.InsertOrderSignature(ctx, e.pool, OrderSignature{
		OrderID: orderID, OrderType: orderType, PartnerID: sub.PartnerID, UserID: sub.UserID, Signature: sigData.SignatureValue,
	}); err != nil {
		return nil, err
	}

	transactionID, err := newTransactionID()
	if err != nil {
		return nil, err
	}
	numSegments := *req.Header.Static.NumSegments

	if err := e.txs.InsertUpload(ctx, e.pool, UploadTransaction{
		TransactionID:     transactionID,
		OrderType:         orderType,
		OrderID:           orderID,
		NumSegments:       numSegments,
		TransactionKeyEnc: req.Body.DataTransfer.TransactionKey,
	}); err != nil {
		return nil, err
	}

	resp := ebicsxml.NewAcknowledgementResponse(ebicsxml.PhaseInitialisation, ebicsxml.CodeOK, "[EBICS_OK] OK")
	resp.Header.Static.TransactionID = transactionID
	return resp, nil
}

// transfer serves a download segment or consumes an upload segment,
// locking on the transactionID to serialize concurrent requests for
// the same in-flight order (spec.md §4.5 step 3, TRANSFER).
func (e *Engine) transfer(ctx context.Context, host *Host, sub *subscriber.Subscriber, req *ebicsxml.Request) (*ebicsxml.Response, error) {
	transactionID := req.Header.Static.TransactionID
	lock := e.lockFor(transactionID)
	lock.Lock()
	defer lock.Unlock()

	if dl, err := e.txs.GetDownload(ctx, e.pool, transactionID); err == nil {
		return e.transferDownload(ctx, dl, req)
	}

	up, err := e.txs.GetUpload(ctx, e.pool, transactionID)
	if err != nil {
		return nil, fail(CodeNoData, "ebicsengine: unknown transaction %s", transactionID)
	}
	return e.transferUpload(ctx, host, sub, up, req)
}

func (e *Engine) transferDownload(ctx context.Context, dl *DownloadTransaction, req *ebicsxml.Request) (*ebicsxml.Response, error) {
	segNum := 1
	if req.Header.Mutable.SegmentNumber != nil {
		segNum = req.Header.Mutable.SegmentNumber.Value
	}

	payload, err := Segment([]byte(dl.EncodedResponse), segNum, dl.NumSegments)
	if err != nil {
		return nil, err
	}

	resp := ebicsxml.NewAcknowledgementResponse(ebicsxml.PhaseTransfer, ebicsxml.CodeOK, "[EBICS_OK] OK")
	resp.Header.Static.TransactionID = dl.TransactionID
	resp.Header.Mutable.SegmentNumber = &ebicsxml.SegmentNumber{Value: segNum, LastSegment: segNum == dl.NumSegments}
	resp.Body.DataTransfer = &ebicsxml.DataTransferResponse{
		OrderData:  payload,
		ReturnCode: ebicsxml.CodeOK,
		ReportText: "[EBICS_OK] OK",
	}
	return resp, nil
}

// transferUpload handles a single-segment upload's TRANSFER phase:
// larger uploads are rejected per spec.md §4.5 ("only single-segment
// uploads are handled ... larger uploads are an unimplemented error").
func (e *Engine) transferUpload(ctx context.Context, host *Host, sub *subscriber.Subscriber, up *UploadTransaction, req *ebicsxml.Request) (*ebicsxml.Response, error) {
	segNum := 1
	if req.Header.Mutable.SegmentNumber != nil {
		segNum = req.Header.Mutable.SegmentNumber.Value
	}
	if up.NumSegments != 1 || segNum != 1 {
		return nil, fail(CodeUnsupported, "ebicsengine: multi-segment uploads are not implemented")
	}
	if req.Body.DataTransfer == nil {
		return nil, fail(CodeInvalidXML, "ebicsengine: upload transfer missing payload")
	}

	plain, err := ebicscrypto.DecryptE002(host.EncryptionPriv, req.Body.DataTransfer.OrderData, up.TransactionKeyEnc)
	if err != nil {
		return nil, fail(CodeAuthFailed, "ebicsengine: decrypt upload payload: %v", err)
	}
	inflated, err := ebicsxml.InflateOrderData(plain)
	if err != nil {
		return nil, fail(CodeInvalidXML, "ebicsengine: inflate upload payload: %v", err)
	}

	if err := e.verifyOrderSignature(ctx, sub, up, inflated); err != nil {
		return nil, err
	}

	if err := e.handler.ConsumeUpload(ctx, host.HostID, sub.PartnerID, sub.UserID, up.OrderType, inflated); err != nil {
		return nil, err
	}

	resp := ebicsxml.NewAcknowledgementResponse(ebicsxml.PhaseTransfer, ebicsxml.CodeOK, "[EBICS_OK] OK")
	resp.Header.Static.TransactionID = up.TransactionID
	return resp, nil
}

// verifyOrderSignature loads the A006 signature uploadInit stored for
// this order and checks it against the now-transferred order data and
// the subscriber's signature key, per spec.md §4.5 TRANSFER ("verify
// every A006 signature" before dispatching to the order handler).
func (e *Engine) verifyOrderSignature(ctx context.Context, sub *subscriber.Subscriber, up *UploadTransaction, orderData []byte) error {
	sig, err := e.txs.GetOrderSignature(ctx, e.pool, up.OrderID, up.OrderType, sub.UserID)
	if err != nil {
		return err
	}

	sigRec := sub.Keys[ebicscrypto.UsageSignature]
	sigKey, err := ebicscrypto.ParsePublicKey(sigRec.PublicKey)
	if err != nil {
		return fail(CodeAuthFailed, "ebicsengine: subscriber signature key: %v", err)
	}

	if verr := ebicscrypto.VerifyA006(sigKey, orderData, sig.Signature); verr != nil {
		return fail(CodeAuthFailed, "ebicsengine: order signature verification: %v", verr)
	}
	return nil
}

// receipt marks a download transaction's receipt flag; RECEIPT is valid
// only for downloads (spec.md §4.5 step 3, RECEIPT), so a transaction id
// naming no download transaction is rejected with 091002. No receipt code
// is read from the request: every accepted RECEIPT sets the flag to true.
func (e *Engine) receipt(ctx context.Context, req *ebicsxml.Request) (*ebicsxml.Response, error) {
	transactionID := req.Header.Static.TransactionID
	if _, err := e.txs.GetDownload(ctx, e.pool, transactionID); err != nil {
		return nil, fail(CodeInvalidUserOrState, "ebicsengine: receipt for %s: %v", transactionID, err)
	}
	received := req.Header.Mutable.TransactionPhase == ebicsxml.PhaseReceipt

	if err := e.txs.MarkDownloadReceipt(ctx, e.pool, transactionID, received); err != nil {
		return nil, err
	}

	resp := ebicsxml.NewAcknowledgementResponse(ebicsxml.PhaseReceipt, ebicsxml.CodeOK, "[EBICS_OK] OK")
	resp.Header.Static.TransactionID = transactionID
	return resp, nil
}
