package ebicsxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeekRootElement(t *testing.T) {
	doc := []byte(`<?xml version="1.0"?><ebicsHEVRequest><HostID>SANDBOX</HostID></ebicsHEVRequest>`)
	root, err := PeekRootElement(doc)
	require.NoError(t, err)
	assert.Equal(t, RootHEVRequest, root)
}

func TestPeekRootElementMalformed(t *testing.T) {
	_, err := PeekRootElement([]byte(``))
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestUnmarshalDispatchesHEVRequest(t *testing.T) {
	doc := []byte(`<ebicsHEVRequest><HostID>SANDBOX</HostID></ebicsHEVRequest>`)
	env, err := Unmarshal(doc)
	require.NoError(t, err)

	hev, ok := env.(*HEVRequest)
	require.True(t, ok)
	assert.Equal(t, "SANDBOX", hev.HostID)
}

func TestUnmarshalUnknownRootElement(t *testing.T) {
	_, err := Unmarshal([]byte(`<somethingElse/>`))
	var unknown *UnknownElement
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "somethingElse", unknown.Local)
}

func TestHEVResponseRoundTrip(t *testing.T) {
	resp := NewHEVResponse()
	out, err := Marshal(resp)
	require.NoError(t, err)

	env, err := Unmarshal(out)
	require.NoError(t, err)
	got, ok := env.(*HEVResponse)
	require.True(t, ok)
	assert.Equal(t, "000000", got.ReturnCode)
	require.Len(t, got.VersionNumbers, 1)
	assert.Equal(t, "H004", got.VersionNumbers[0].ProtocolVersion)
}

func TestDeflateInflateOrderDataRoundTrip(t *testing.T) {
	plain := []byte("<Document>order data payload</Document>")
	compressed, err := DeflateOrderData(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, compressed)

	got, err := InflateOrderData(compressed)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestParsePain001(t *testing.T) {
	doc := []byte(`<Document>
		<CstmrCdtTrfInitn>
			<GrpHdr><MsgId>MSG-1</MsgId><NbOfTxs>1</NbOfTxs></GrpHdr>
			<PmtInf>
				<PmtInfId>PMT-1</PmtInfId>
				<Dbtr><Nm>Alice</Nm></Dbtr>
				<DbtrAcct><Id><IBAN>CH0001</IBAN></Id></DbtrAcct>
				<CdtTrfTxInf>
					<PmtId><EndToEndId>E2E-1</EndToEndId></PmtId>
					<Amt><InstdAmt Ccy="EUR">12.50</InstdAmt></Amt>
					<Cdtr><Nm>Bob</Nm></Cdtr>
					<CdtrAcct><Id><IBAN>CH0002</IBAN></Id></CdtrAcct>
					<RmtInf><Ustrd>invoice 42</Ustrd></RmtInf>
				</CdtTrfTxInf>
			</PmtInf>
		</CstmrCdtTrfInitn>
	</Document>`)

	doc2, err := ParsePain001(doc)
	require.NoError(t, err)
	require.Len(t, doc2.CstmrCdtTrfInitn.PaymentInfos, 1)

	pmt := doc2.CstmrCdtTrfInitn.PaymentInfos[0]
	assert.Equal(t, "PMT-1", pmt.PmtInfID)
	require.Len(t, pmt.Transactions, 1)
	tx := pmt.Transactions[0]
	assert.Equal(t, "EUR", tx.Amount.Currency)
	assert.Equal(t, "12.50", tx.Amount.Value)
	assert.Equal(t, "invoice 42", tx.Subject)
}

func TestParsePain001RejectsEmpty(t *testing.T) {
	doc := []byte(`<Document><CstmrCdtTrfInitn><GrpHdr><MsgId>x</MsgId></GrpHdr></CstmrCdtTrfInitn></Document>`)
	_, err := ParsePain001(doc)
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestNewAcknowledgementResponse(t *testing.T) {
	resp := NewAcknowledgementResponse(PhaseReceipt, CodeOK, "[EBICS_OK] OK")
	assert.Equal(t, PhaseReceipt, resp.Header.Mutable.TransactionPhase)
	assert.Equal(t, CodeOK, resp.Body.ReturnCode)
}
