package orders

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sandboxbank/ebicsd/internal/ebicsxml"
	"github.com/sandboxbank/ebicsd/internal/ledger"
)

// handleCCT parses an uploaded pain.001 document and posts its credit
// transfers against the ledger. Idempotent on PmtInfId: a previously
// posted PmtInfId is a no-op, not an error (spec.md §4.6).
func (r *Registry) handleCCT(ctx context.Context, hostID string, payload []byte) error {
	doc, err := ebicsxml.ParsePain001(payload)
	if err != nil {
		return err
	}

	repo := r.ledger.Repository()
	pool := r.ledger.Pool()

	for _, pmtInfo := range doc.CstmrCdtTrfInitn.PaymentInfos {
		existing, err := repo.TransactionByPmtInfID(ctx, pool, pmtInfo.PmtInfID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		for _, txn := range pmtInfo.Transactions {
			if err := r.postCreditTransfer(ctx, doc.CstmrCdtTrfInitn.GroupHeader.MessageID, pmtInfo, txn); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) postCreditTransfer(ctx context.Context, msgID string, pmtInfo ebicsxml.Pain001PaymentInfo, txn ebicsxml.Pain001CreditTransfer) error {
	pool := r.ledger.Pool()
	repo := r.ledger.Repository()

	debtor, err := repo.FindAccountByIBAN(ctx, pool, pmtInfo.DebtorIBAN)
	if err != nil {
		return fmt.Errorf("orders: resolve debtor account %s: %w", pmtInfo.DebtorIBAN, err)
	}

	demobank, err := repo.GetDemobank(ctx, pool, debtor.DemobankName)
	if err != nil {
		return err
	}
	if txn.Amount.Currency != demobank.Currency {
		return ledger.ErrBadCurrency
	}

	amount, err := decimal.NewFromString(txn.Amount.Value)
	if err != nil {
		return fmt.Errorf("orders: parse amount %q: %w", txn.Amount.Value, err)
	}

	// Cross-institution settlement is not simulated: only post the
	// creditor side when the IBAN also belongs to a local account.
	creditor, err := repo.GetAccountByIBAN(ctx, pool, debtor.DemobankName, txn.CreditorIBAN)
	if err != nil {
		if err == ledger.ErrAccountNotFound {
			return nil
		}
		return err
	}

	_, err = r.ledger.Post(ctx, ledger.PostParams{
		Demobank:      demobank,
		DebitAccount:  debtor,
		CreditAccount: creditor,
		Subject:       txn.Subject,
		Amount:        amount,
		Currency:      txn.Amount.Currency,
		MsgID:         msgID,
		PmtInfID:      pmtInfo.PmtInfID,
		EndToEndID:    txn.EndToEndID,
	})
	return err
}
