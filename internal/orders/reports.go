package orders

import (
	"context"
	"time"

	"github.com/sandboxbank/ebicsd/internal/camt"
	"github.com/sandboxbank/ebicsd/internal/ebicsengine"
	"github.com/sandboxbank/ebicsd/internal/ledger"
)

// handleC52 renders a camt.052 interim report over the account's fresh
// transactions without clearing them — the report may be requested
// repeatedly between statements (spec.md §4.6).
func (r *Registry) handleC52(ctx context.Context, hostID, partnerID, userID string) ([]byte, error) {
	account, err := r.account(ctx, hostID, partnerID, userID)
	if err != nil {
		return nil, err
	}

	demobank, err := r.ledger.Repository().GetDemobank(ctx, r.ledger.Pool(), account.DemobankName)
	if err != nil {
		return nil, err
	}

	pre, err := r.ledger.Balance(ctx, r.ledger.Pool(), account, false)
	if err != nil {
		return nil, err
	}

	fresh, err := r.ledger.Repository().FreshTransactions(ctx, r.ledger.Pool(), account.ID)
	if err != nil {
		return nil, err
	}

	post := pre
	for _, t := range fresh {
		post = post.Add(t.SignedAmount())
	}

	return camt.BuildReport(account, demobank.Currency, pre, post, fresh, currentTime().UTC())
}

// handleC53 returns a stored statement (spec.md §4.6). The download-init
// path fills params from the request's StartDate/EndDate; when both are
// set, the latest statement created within [start,end] is returned, and
// earlier statements in that range are not. Without a range, the latest
// statement overall is returned.
func (r *Registry) handleC53(ctx context.Context, hostID, partnerID, userID string, params ebicsengine.OrderParams) ([]byte, error) {
	account, err := r.account(ctx, hostID, partnerID, userID)
	if err != nil {
		return nil, err
	}

	if params.Start != "" && params.End != "" {
		start, err := time.Parse("2006-01-02", params.Start)
		if err != nil {
			return nil, err
		}
		end, err := time.Parse("2006-01-02", params.End)
		if err != nil {
			return nil, err
		}
		stmts, err := r.ledger.Repository().StatementsInRange(ctx, r.ledger.Pool(), account.ID, start, end)
		if err != nil {
			return nil, err
		}
		if len(stmts) == 0 {
			return nil, ledger.ErrNoStatements
		}
		return stmts[len(stmts)-1].CamtXML, nil
	}

	last, err := r.ledger.Repository().LastStatement(ctx, r.ledger.Pool(), account.ID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, ledger.ErrNoStatements
	}
	return last.CamtXML, nil
}
