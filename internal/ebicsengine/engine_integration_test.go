package ebicsengine_test

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sandboxbank/ebicsd/internal/ebicscrypto"
	"github.com/sandboxbank/ebicsd/internal/ebicsengine"
	"github.com/sandboxbank/ebicsd/internal/ebicsxml"
	"github.com/sandboxbank/ebicsd/internal/schema"
	"github.com/sandboxbank/ebicsd/internal/subscriber"
	"github.com/sandboxbank/ebicsd/internal/testutil"
)

// stubHandler records whatever payload reaches ConsumeUpload, letting the
// test assert that a correctly signed upload dispatches and an
// incorrectly signed one never does.
type stubHandler struct {
	consumed []byte
}

func (h *stubHandler) BuildDownload(ctx context.Context, hostID, partnerID, userID, orderType string, params ebicsengine.OrderParams) ([]byte, error) {
	return []byte("<Dummy/>"), nil
}

func (h *stubHandler) ConsumeUpload(ctx context.Context, hostID, partnerID, userID, orderType string, payload []byte) error {
	h.consumed = payload
	return nil
}

func modulusExponent(pub *rsa.PublicKey) ([]byte, []byte) {
	e := pub.E
	var exp []byte
	for e > 0 {
		exp = append([]byte{byte(e & 0xff)}, exp...)
		e >>= 8
	}
	return pub.N.Bytes(), exp
}

// encryptUnderKey mirrors ebicscrypto.EncryptE002's AES-128-CBC
// zero-IV scheme but takes the transport key as input instead of
// generating a fresh one, so the test can encrypt the INITIALISATION
// and TRANSFER payloads under the one transport key the server expects
// to reuse across both phases of an upload.
func encryptUnderKey(key, plaintext []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	padLen := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(append([]byte{}, plaintext...), make([]byte, padLen)...)
	for i := len(padded) - padLen; i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	iv := make([]byte, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext
}

func authContent(hostID, partnerID, userID, transactionID, phase string) []byte {
	return []byte(hostID + partnerID + userID + transactionID + phase)
}

// TestEngineINIHIAHPBRoundTrip drives the INI -> HIA -> HPB key
// handshake through bare wire bytes, the path that previously broke at
// the PKIX-vs-raw-modulus boundary, and checks that an HPB signed with
// the wrong authentication key is rejected (spec.md §4.2, §4.4). The
// authenticated upload is covered by
// TestEngineTransferUploadVerifiesStoredA006Signature.
func TestEngineINIHIAHPBRoundTrip(t *testing.T) {
	schemaSQL, err := schema.InitialSchema()
	require.NoError(t, err)
	pg := testutil.StartPostgres(t, string(schemaSQL))
	ctx := context.Background()

	hosts := ebicsengine.NewHostRepository()
	subs := subscriber.NewRepository()
	txs := ebicsengine.NewRepository()
	handler := &stubHandler{}
	engine := ebicsengine.NewEngine(pg.Pool, hosts, subs, txs, handler, 1000, 1000)

	_, err = hosts.Insert(ctx, pg.Pool, "HOST1")
	require.NoError(t, err)

	sub := subscriber.NewSubscriber("HOST1", "PARTNER1", "USER1")
	_, err = subs.Insert(ctx, pg.Pool, sub)
	require.NoError(t, err)

	sigKey, err := ebicscrypto.GenerateKeyPair()
	require.NoError(t, err)
	encKey, err := ebicscrypto.GenerateKeyPair()
	require.NoError(t, err)
	authKey, err := ebicscrypto.GenerateKeyPair()
	require.NoError(t, err)

	// INI: submit the signature key.
	sigMod, sigExp := modulusExponent(&sigKey.PublicKey)
	iniData := ebicsxml.SignaturePubKeyOrderData{
		Modulus: sigMod, Exponent: sigExp, SignatureVersion: "A006",
		PartnerID: "PARTNER1", UserID: "USER1",
	}
	iniXML, err := xml.Marshal(&iniData)
	require.NoError(t, err)
	iniDeflated, err := ebicsxml.DeflateOrderData(iniXML)
	require.NoError(t, err)
	iniReq := &ebicsxml.UnsecuredRequest{
		Header: ebicsxml.StaticHeader{
			HostID: "HOST1", PartnerID: "PARTNER1", UserID: "USER1",
			OrderType: "INI", SecurityMedium: "0000",
		},
		OrderData: iniDeflated,
	}
	iniRaw, err := ebicsxml.Marshal(iniReq)
	require.NoError(t, err)
	_, err = engine.HandleEnvelope(ctx, iniRaw)
	require.NoError(t, err)

	// HIA: submit the encryption + authentication keys.
	encMod, encExp := modulusExponent(&encKey.PublicKey)
	authMod, authExp := modulusExponent(&authKey.PublicKey)
	hiaData := ebicsxml.HIAPubKeyOrderData{
		EncryptionModulus: encMod, EncryptionExponent: encExp, EncryptionVersion: "E002",
		AuthenticationModulus: authMod, AuthenticationExponent: authExp, AuthenticationVersion: "X002",
		PartnerID: "PARTNER1", UserID: "USER1",
	}
	hiaXML, err := xml.Marshal(&hiaData)
	require.NoError(t, err)
	hiaDeflated, err := ebicsxml.DeflateOrderData(hiaXML)
	require.NoError(t, err)
	hiaReq := &ebicsxml.UnsecuredRequest{
		Header: ebicsxml.StaticHeader{
			HostID: "HOST1", PartnerID: "PARTNER1", UserID: "USER1",
			OrderType: "HIA", SecurityMedium: "0000",
		},
		OrderData: hiaDeflated,
	}
	hiaRaw, err := ebicsxml.Marshal(hiaReq)
	require.NoError(t, err)
	_, err = engine.HandleEnvelope(ctx, hiaRaw)
	require.NoError(t, err)

	// HPB: request the bank's own keys, signed under the just-submitted
	// authentication key. Before the fix this failed to parse the
	// stored (bare-modulus) key and the request carried no signature at
	// all to verify.
	hpbReq := &ebicsxml.NoPubKeyDigestsRequest{
		Header: ebicsxml.StaticHeader{HostID: "HOST1", PartnerID: "PARTNER1", UserID: "USER1", SecurityMedium: "0000"},
	}
	hpbSig, err := ebicscrypto.SignA006(authKey, []byte("HOST1PARTNER1USER1"))
	require.NoError(t, err)
	hpbReq.AuthSignature = hpbSig
	hpbRaw, err := ebicsxml.Marshal(hpbReq)
	require.NoError(t, err)
	hpbRespRaw, err := engine.HandleEnvelope(ctx, hpbRaw)
	require.NoError(t, err)
	require.Contains(t, string(hpbRespRaw), "ebicsResponse")

	// A wrong authentication key must be rejected.
	wrongKey, err := ebicscrypto.GenerateKeyPair()
	require.NoError(t, err)
	badSig, err := ebicscrypto.SignA006(wrongKey, []byte("HOST1PARTNER1USER1"))
	require.NoError(t, err)
	hpbReqBad := &ebicsxml.NoPubKeyDigestsRequest{
		Header:        ebicsxml.StaticHeader{HostID: "HOST1", PartnerID: "PARTNER1", UserID: "USER1", SecurityMedium: "0000"},
		AuthSignature: badSig,
	}
	hpbBadRaw, err := ebicsxml.Marshal(hpbReqBad)
	require.NoError(t, err)
	_, err = engine.HandleEnvelope(ctx, hpbBadRaw)
	require.Error(t, err)
}

// TestEngineTransferUploadVerifiesStoredA006Signature exercises the
// upload INITIALISATION/TRANSFER pair end to end: a correctly signed
// order reaches ConsumeUpload, and one whose TRANSFER payload doesn't
// match the signature stored at INITIALISATION is rejected before
// dispatch (spec.md §4.5 TRANSFER).
func TestEngineTransferUploadVerifiesStoredA006Signature(t *testing.T) {
	schemaSQL, err := schema.InitialSchema()
	require.NoError(t, err)
	pg := testutil.StartPostgres(t, string(schemaSQL))
	ctx := context.Background()

	hosts := ebicsengine.NewHostRepository()
	subs := subscriber.NewRepository()
	txs := ebicsengine.NewRepository()
	handler := &stubHandler{}
	engine := ebicsengine.NewEngine(pg.Pool, hosts, subs, txs, handler, 1000, 1000)

	host, err := hosts.Insert(ctx, pg.Pool, "HOST2")
	require.NoError(t, err)

	sub := subscriber.NewSubscriber("HOST2", "PARTNER1", "USER1")
	sigKey, err := ebicscrypto.GenerateKeyPair()
	require.NoError(t, err)
	encKey, err := ebicscrypto.GenerateKeyPair()
	require.NoError(t, err)
	authKey, err := ebicscrypto.GenerateKeyPair()
	require.NoError(t, err)
	sigMod, sigExp := modulusExponent(&sigKey.PublicKey)
	encMod, encExp := modulusExponent(&encKey.PublicKey)
	authMod, authExp := modulusExponent(&authKey.PublicKey)
	require.NoError(t, sub.ReceiveINI(sigMod, sigExp))
	require.NoError(t, sub.ReceiveHIA(encMod, encExp, authMod, authExp))
	_, err = subs.Insert(ctx, pg.Pool, sub)
	require.NoError(t, err)

	runUpload := func(orderData, signedPayload []byte) error {
		transportKey := make([]byte, 16)
		_, err := rand.Read(transportKey)
		require.NoError(t, err)
		wrappedKey, err := rsa.EncryptPKCS1v15(rand.Reader, &host.EncryptionPriv.PublicKey, transportKey)
		require.NoError(t, err)

		sigValue, err := ebicscrypto.SignA006(sigKey, signedPayload)
		require.NoError(t, err)
		sigData := ebicsxml.UserSignatureData{
			SignatureVersion: "A006", SignatureValue: sigValue,
			PartnerID: "PARTNER1", UserID: "USER1",
		}
		sigXML, err := xml.Marshal(&sigData)
		require.NoError(t, err)
		sigDeflated, err := ebicsxml.DeflateOrderData(sigXML)
		require.NoError(t, err)

		one := 1
		initReq := &ebicsxml.Request{
			Version: "H004", Revision: "1",
			Header: ebicsxml.RequestHeader{
				Static: ebicsxml.RequestStaticHeader{
					HostID: "HOST2", PartnerID: "PARTNER1", UserID: "USER1",
					NumSegments:  &one,
					OrderDetails: &ebicsxml.RequestOrderDetails{OrderType: "CCT", OrderAttribute: "DZHNN"},
				},
				Mutable: ebicsxml.MutableHeader{TransactionPhase: ebicsxml.PhaseInitialisation},
			},
		}
		initReq.AuthSignature, err = ebicscrypto.SignA006(authKey,
			authContent("HOST2", "PARTNER1", "USER1", "", string(ebicsxml.PhaseInitialisation)))
		require.NoError(t, err)
		initReq.Body.DataTransfer = &ebicsxml.DataTransferRequest{
			TransactionKey: wrappedKey,
			OrderData:      encryptUnderKey(transportKey, sigDeflated),
		}
		initRaw, err := ebicsxml.Marshal(initReq)
		require.NoError(t, err)
		initRespRaw, err := engine.HandleEnvelope(ctx, initRaw)
		require.NoError(t, err)

		env, err := ebicsxml.Unmarshal(initRespRaw)
		require.NoError(t, err)
		initResp := env.(*ebicsxml.Response)
		transactionID := initResp.Header.Static.TransactionID
		require.NotEmpty(t, transactionID)

		orderDeflated, err := ebicsxml.DeflateOrderData(orderData)
		require.NoError(t, err)
		transferReq := &ebicsxml.Request{
			Version: "H004", Revision: "1",
			Header: ebicsxml.RequestHeader{
				Static: ebicsxml.RequestStaticHeader{
					HostID: "HOST2", PartnerID: "PARTNER1", UserID: "USER1",
					TransactionID: transactionID,
				},
				Mutable: ebicsxml.MutableHeader{
					TransactionPhase: ebicsxml.PhaseTransfer,
					SegmentNumber:    &ebicsxml.SegmentNumber{Value: 1, LastSegment: true},
				},
			},
			Body: ebicsxml.RequestBody{
				DataTransfer: &ebicsxml.DataTransferRequest{OrderData: encryptUnderKey(transportKey, orderDeflated)},
			},
		}
		transferReq.AuthSignature, err = ebicscrypto.SignA006(authKey,
			authContent("HOST2", "PARTNER1", "USER1", transactionID, string(ebicsxml.PhaseTransfer)))
		require.NoError(t, err)
		transferRaw, err := ebicsxml.Marshal(transferReq)
		require.NoError(t, err)

		_, err = engine.HandleEnvelope(ctx, transferRaw)
		return err
	}

	orderData := []byte("<CstmrCdtTrfInitn>legit</CstmrCdtTrfInitn>")
	require.NoError(t, runUpload(orderData, orderData))
	require.Equal(t, orderData, handler.consumed)

	handler.consumed = nil
	tamperedData := []byte("<CstmrCdtTrfInitn>tampered</CstmrCdtTrfInitn>")
	err = runUpload(tamperedData, orderData) // signs orderData but transfers tamperedData
	require.Error(t, err)
	require.Nil(t, handler.consumed)
}
