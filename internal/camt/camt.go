// Package camt renders ISO 20022 camt.052 (interim report) and
// camt.053 (statement) documents from the ledger's posted
// transactions, chaining each statement's opening balance (PRCD) to
// the previous statement's closing balance (CLBD) (spec.md §4.7, §8
// invariant 3).
package camt

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sandboxbank/ebicsd/internal/ledger"
	"github.com/sandboxbank/ebicsd/internal/money"
)

// Document is the root camt.05x element this builder produces. Both
// camt.052 and camt.053 share the same Bank-to-Customer-Statement shape
// in this sandbox; only the message-definition identifier recorded in
// the group header differs.
type Document struct {
	XMLName xml.Name    `xml:"Document"`
	Xmlns   string      `xml:"xmlns,attr"`
	GrpHdr  GroupHeader `xml:"BkToCstmrStmt>GrpHdr"`
	Stmt    Statement   `xml:"BkToCstmrStmt>Stmt"`
}

// GroupHeader is the message-level envelope header, distinct from the
// statement's own Id/CreDtTm (spec.md §4.7: "MsgId = sandbox-<epochMs>").
type GroupHeader struct {
	MsgID        string `xml:"MsgId"`
	CreationDate string `xml:"CreDtTm"`
}

type Statement struct {
	ID           string    `xml:"Id"`
	CreationDate string    `xml:"CreDtTm"`
	Account      Account   `xml:"Acct"`
	Balances     []Balance `xml:"Bal"`
	Entries      []Entry   `xml:"Ntry"`
}

type Account struct {
	IBAN string `xml:"Id>IBAN"`
	BIC  string `xml:"Svcr>FinInstnId>BIC,omitempty"`
}

// Amount carries a decimal value with its ISO 4217 currency attribute,
// the shape every ISO 20022 amount element uses.
type Amount struct {
	Value    string `xml:",chardata"`
	Currency string `xml:"Ccy,attr"`
}

type Balance struct {
	Type        string `xml:"Tp>CdOrPrtry>Cd"`
	Amount      Amount `xml:"Amt"`
	CreditDebit string `xml:"CdtDbtInd"`
	Date        string `xml:"Dt>Dt"`
}

type Entry struct {
	Amount      Amount `xml:"Amt"`
	CreditDebit string `xml:"CdtDbtInd"`
	Status      string `xml:"Sts"`
	BookingDate string `xml:"BookgDt>Dt"`
	ValueDate   string `xml:"ValDt>Dt"`
	Reference   string `xml:"AcctSvcrRef"`
	BkTxDomain  string `xml:"BkTxCd>Domn>Cd"`
	BkTxFamily  string `xml:"BkTxCd>Domn>Fmly>Cd"`
	BkTxSubFam  string `xml:"BkTxCd>Domn>Fmly>SubFmlyCd"`

	MsgID      string `xml:"NtryDtls>TxDtls>Refs>MsgId,omitempty"`
	PmtInfID   string `xml:"NtryDtls>TxDtls>Refs>PmtInfId,omitempty"`
	EndToEndID string `xml:"NtryDtls>TxDtls>Refs>EndToEndId,omitempty"`

	CounterpartyName string `xml:"NtryDtls>TxDtls>RltdPties>Nm,omitempty"`
	CounterpartyIBAN string `xml:"NtryDtls>TxDtls>RltdPties>Id>IBAN,omitempty"`
	CounterpartyBIC  string `xml:"NtryDtls>TxDtls>RltdPties>FinInstnId>BIC,omitempty"`

	Subject string `xml:"NtryDtls>TxDtls>RmtInf>Ustrd,omitempty"`
}

// namespaces used for camt.052.001.02 / camt.053.001.02 — this sandbox
// only ever emits the 02 schema version.
const (
	NamespaceCamt052 = "urn:iso:std:iso:20022:tech:xsd:camt.052.001.02"
	NamespaceCamt053 = "urn:iso:std:iso:20022:tech:xsd:camt.053.001.02"
)

const dateLayout = "2006-01-02T15:04:05Z"

// creditDebitIndicator implements the sign rule from spec.md §8
// invariant 3: CRDT if the amount is non-negative, DBIT otherwise.
func creditDebitIndicator(v decimal.Decimal) string {
	if v.IsNegative() {
		return "DBIT"
	}
	return "CRDT"
}

// BuildStatement renders a camt.053 document: opening balance PRCD,
// the fresh entries that moved the balance, and closing balance CLBD.
// The caller (ledger.Ledger.MaterializeStatement) supplies pre/post
// balances and the fresh transactions already folded between them.
func BuildStatement(account ledger.BankAccount, currency string, pre, post decimal.Decimal,
	fresh []ledger.LedgerTransaction, at time.Time) ([]byte, error) {
	return build(NamespaceCamt053, account, currency, pre, post, fresh, at)
}

// BuildReport renders a camt.052 interim report with the same shape as
// a statement but a different namespace, used for on-demand C52
// queries that do not clear the fresh-transaction outbox (spec.md
// §4.6).
func BuildReport(account ledger.BankAccount, currency string, pre, post decimal.Decimal,
	fresh []ledger.LedgerTransaction, at time.Time) ([]byte, error) {
	return build(NamespaceCamt052, account, currency, pre, post, fresh, at)
}

func build(namespace string, account ledger.BankAccount, currency string, pre, post decimal.Decimal,
	fresh []ledger.LedgerTransaction, at time.Time) ([]byte, error) {

	dateStr := at.UTC().Format("2006-01-02")

	stmt := Statement{
		ID:           fmt.Sprintf("%s-%d", account.Label, at.UTC().Unix()),
		CreationDate: at.UTC().Format(dateLayout),
		Account:      Account{IBAN: account.IBAN, BIC: account.BIC},
		Balances: []Balance{
			{
				Type:        "PRCD",
				Amount:      Amount{Value: money.PlainString(pre.Abs()), Currency: currency},
				CreditDebit: creditDebitIndicator(pre),
				Date:        dateStr,
			},
			{
				Type:        "CLBD",
				Amount:      Amount{Value: money.PlainString(post.Abs()), Currency: currency},
				CreditDebit: creditDebitIndicator(post),
				Date:        dateStr,
			},
		},
	}

	for _, t := range fresh {
		signed := t.SignedAmount()

		// NtryDtls/TxDtls names the *other* party: the debtor when this
		// entry credits the account, the creditor when it debits it
		// (spec.md §4.7).
		var cpName, cpIBAN, cpBIC string
		if t.Direction == ledger.CRDT {
			cpName, cpIBAN, cpBIC = t.DebtorName, t.DebtorIBAN, t.DebtorBIC
		} else {
			cpName, cpIBAN, cpBIC = t.CreditorName, t.CreditorIBAN, t.CreditorBIC
		}

		bookingDate := t.Timestamp.UTC().Format("2006-01-02")
		stmt.Entries = append(stmt.Entries, Entry{
			Amount:      Amount{Value: money.PlainString(t.Amount), Currency: t.Currency},
			CreditDebit: creditDebitIndicator(signed),
			Status:      "BOOK",
			BookingDate: bookingDate,
			ValueDate:   bookingDate,
			Reference:   t.AccountServicerReference,
			BkTxDomain:  "PMNT",
			BkTxFamily:  "ICDT",
			BkTxSubFam:  "ESCT",
			MsgID:       t.MsgID,
			PmtInfID:    t.PmtInfID,
			EndToEndID:  t.EndToEndID,

			CounterpartyName: cpName,
			CounterpartyIBAN: cpIBAN,
			CounterpartyBIC:  cpBIC,

			Subject: t.Subject,
		})
	}

	doc := Document{
		Xmlns: namespace,
		GrpHdr: GroupHeader{
			MsgID:        fmt.Sprintf("sandbox-%d", at.UTC().UnixMilli()),
			CreationDate: at.UTC().Format(dateLayout),
		},
		Stmt: stmt,
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("camt: render statement: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
