package ebicsengine

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v4/pgxpool"
	"golang.org/x/time/rate"

	"github.com/sandboxbank/ebicsd/internal/ebicscrypto"
	"github.com/sandboxbank/ebicsd/internal/ebicsxml"
	"github.com/sandboxbank/ebicsd/internal/subscriber"
)

// Engine is the EBICS request dispatcher: it parses an inbound
// envelope, branches on its root element, and for ebicsRequest runs
// the three-phase order state machine (spec.md §4.5). Each repository
// call of a phase runs directly on the pool: the steps of one request
// are not wrapped in a single database transaction, and nothing is
// retried on a serialization conflict.
//
// txLock serializes concurrent TRANSFER-phase requests against the
// same in-flight transactionID, mirroring htlcswitch/switch.go's
// pendingPayments map guarded by an RWMutex.
type Engine struct {
	pool      *pgxpool.Pool
	hosts     *HostRepository
	subs      *subscriber.Repository
	txs       *Repository
	handler   OrderHandler
	limiter   *rate.Limiter

	txMu   sync.RWMutex
	txLock map[string]*sync.Mutex
}

// NewEngine constructs an Engine. requestsPerSecond/burst configure the
// ingress rate limiter applied per call to HandleEnvelope.
func NewEngine(pool *pgxpool.Pool, hosts *HostRepository, subs *subscriber.Repository, txs *Repository,
	handler OrderHandler, requestsPerSecond float64, burst int) *Engine {
	return &Engine{
		pool:    pool,
		hosts:   hosts,
		subs:    subs,
		txs:     txs,
		handler: handler,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		txLock:  make(map[string]*sync.Mutex),
	}
}

// lockFor returns the per-transactionID mutex, creating it on first use.
func (e *Engine) lockFor(transactionID string) *sync.Mutex {
	e.txMu.Lock()
	defer e.txMu.Unlock()
	m, ok := e.txLock[transactionID]
	if !ok {
		m = &sync.Mutex{}
		e.txLock[transactionID] = m
	}
	return m
}

// HandleEnvelope parses raw, dispatches by root element, and returns
// the marshaled response envelope (spec.md §4.5's dispatch table).
func (e *Engine) HandleEnvelope(ctx context.Context, raw []byte) ([]byte, error) {
	if !e.limiter.Allow() {
		return nil, fail(CodeUnsupported, "ebicsengine: request rate limit exceeded")
	}

	env, err := ebicsxml.Unmarshal(raw)
	if err != nil {
		return nil, fail(CodeInvalidXML, "ebicsengine: %v", err)
	}

	switch v := env.(type) {
	case *ebicsxml.HEVRequest:
		return ebicsxml.Marshal(ebicsxml.NewHEVResponse())

	case *ebicsxml.UnsecuredRequest:
		resp, err := e.handleUnsecured(ctx, v)
		if err != nil {
			return nil, err
		}
		return ebicsxml.Marshal(resp)

	case *ebicsxml.NoPubKeyDigestsRequest:
		resp, err := e.handleHPB(ctx, v)
		if err != nil {
			return nil, err
		}
		return ebicsxml.Marshal(resp)

	case *ebicsxml.Request:
		resp, err := e.handleOrder(ctx, v)
		if err != nil {
			return nil, err
		}
		return ebicsxml.Marshal(resp)

	default:
		return nil, fail(CodeInvalidXML, "ebicsengine: unhandled envelope type %T", v)
	}
}

// handleUnsecured processes INI and HIA: new key material arriving
// with no prior authenticated session (spec.md §4.4).
func (e *Engine) handleUnsecured(ctx context.Context, req *ebicsxml.UnsecuredRequest) (*ebicsxml.Response, error) {
	host, err := e.hosts.Get(ctx, e.pool, req.Header.HostID)
	if err != nil {
		return nil, err
	}

	plain, err := ebicsxml.InflateOrderData(req.OrderData)
	if err != nil {
		return nil, fail(CodeInvalidXML, "ebicsengine: inflate order data: %v", err)
	}

	sub, err := e.subs.Get(ctx, e.pool, host.HostID, req.Header.PartnerID, req.Header.UserID)
	if err != nil {
		return nil, fail(CodeInvalidUserOrState, "ebicsengine: %v", err)
	}

	switch req.Header.OrderType {
	case "INI":
		var data ebicsxml.SignaturePubKeyOrderData
		if uerr := xml.Unmarshal(plain, &data); uerr != nil {
			return nil, fail(CodeInvalidXML, "ebicsengine: parse SignaturePubKeyOrderData: %v", uerr)
		}
		if err := sub.ReceiveINI(data.Modulus, data.Exponent); err != nil {
			return nil, fail(CodeInvalidUserOrState, "ebicsengine: %v", err)
		}
	case "HIA":
		var data ebicsxml.HIAPubKeyOrderData
		if uerr := xml.Unmarshal(plain, &data); uerr != nil {
			return nil, fail(CodeInvalidXML, "ebicsengine: parse HIARequestOrderData: %v", uerr)
		}
		if err := sub.ReceiveHIA(data.EncryptionModulus, data.EncryptionExponent,
			data.AuthenticationModulus, data.AuthenticationExponent); err != nil {
			return nil, fail(CodeInvalidUserOrState, "ebicsengine: %v", err)
		}
	default:
		return nil, fail(CodeInvalidXML, "ebicsengine: unsupported unsecured order type %s", req.Header.OrderType)
	}

	if err := e.subs.Save(ctx, e.pool, sub); err != nil {
		return nil, err
	}

	return ebicsxml.NewAcknowledgementResponse(ebicsxml.PhaseReceipt, ebicsxml.CodeOK, "[EBICS_OK] OK"), nil
}

// handleHPB returns the host's authentication and encryption public
// keys, encrypted under the requesting subscriber's encryption key
// (spec.md §4.4). Only valid once the subscriber is INITIALIZED.
func (e *Engine) handleHPB(ctx context.Context, req *ebicsxml.NoPubKeyDigestsRequest) (*ebicsxml.Response, error) {
	host, err := e.hosts.Get(ctx, e.pool, req.Header.HostID)
	if err != nil {
		return nil, err
	}

	sub, err := e.subs.Get(ctx, e.pool, host.HostID, req.Header.PartnerID, req.Header.UserID)
	if err != nil {
		return nil, fail(CodeInvalidUserOrState, "ebicsengine: %v", err)
	}
	if !sub.Ready() {
		return nil, fail(CodeInvalidUserOrState, "ebicsengine: subscriber %s not INITIALIZED", sub.UserID)
	}

	if err := verifyAuthSignatureAgainst(sub, signedHPBContent(req), req.AuthSignature); err != nil {
		return nil, err
	}

	encKeyRec := sub.Keys[ebicscrypto.UsageEncryption]
	subEncKey, err := ebicscrypto.ParsePublicKey(encKeyRec.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("ebicsengine: subscriber encryption key: %w", err)
	}

	authDigest := ebicscrypto.PublicKeyDigest(&host.AuthPriv.PublicKey)
	encDigest := ebicscrypto.PublicKeyDigest(&host.EncryptionPriv.PublicKey)

	orderData := ebicsxml.HPBResponseOrderData{
		HostID:                 host.HostID,
		EncryptionModulus:      host.EncryptionPriv.PublicKey.N.Bytes(),
		EncryptionExponent:     bigE(host.EncryptionPriv.PublicKey.E),
		EncryptionVersion:      "E002",
		EncryptionDigest:       encDigest[:],
		AuthenticationModulus:  host.AuthPriv.PublicKey.N.Bytes(),
		AuthenticationExponent: bigE(host.AuthPriv.PublicKey.E),
		AuthenticationVersion:  "X002",
		AuthenticationDigest:   authDigest[:],
	}
	plain, err := xml.Marshal(&orderData)
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

	resp := ebicsxml.NewAcknowledgementResponse(ebicsxml.PhaseReceipt, ebicsxml.CodeOK, "[EBICS_OK] OK")
	resp.Body.DataTransfer = &ebicsxml.DataTransferResponse{
		TransactionKey: wrappedKey,
		OrderData:      []byte(base64.StdEncoding.EncodeToString(ciphertext)),
		ReturnCode:     ebicsxml.CodeOK,
		ReportText:     "[EBICS_OK] OK",
	}
	return resp, nil
}

func bigE(e int) []byte {
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

func newTransactionID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("ebicsengine: generate transaction id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
