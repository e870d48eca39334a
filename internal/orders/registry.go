// Package orders implements the EBICS order-type handlers HTD, HKD,
// C52, C53, CCT, TSD, and PTK (spec.md §4.6): one focused, early-return
// method per order type over a shared Registry, the way rpcserver.go
// dispatches one method per RPC over a shared *server.
package orders

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/sandboxbank/ebicsd/internal/ebicsengine"
	"github.com/sandboxbank/ebicsd/internal/ebicsxml"
	"github.com/sandboxbank/ebicsd/internal/ledger"
)

// Registry implements ebicsengine.OrderHandler over the ledger,
// resolving the requesting subscriber's bank account by its persisted
// bank_account_id.
type Registry struct {
	ledger        *ledger.Ledger
	subAccounts   SubscriberAccounts
	supportedOrders []string
}

// SubscriberAccounts resolves a subscriber's bound bank account,
// avoiding a dependency from this package on internal/subscriber's
// persistence layer beyond what order handlers actually need.
type SubscriberAccounts interface {
	AccountFor(ctx context.Context, hostID, partnerID, userID string) (ledger.BankAccount, error)
}

// NewRegistry constructs a Registry.
func NewRegistry(l *ledger.Ledger, accounts SubscriberAccounts) *Registry {
	return &Registry{
		ledger:      l,
		subAccounts: accounts,
		supportedOrders: []string{"C52", "C53", "CCT", "CCC", "STA", "VMK"},
	}
}

var _ ebicsengine.OrderHandler = (*Registry)(nil)

// BuildDownload dispatches a download order to its handler.
func (r *Registry) BuildDownload(ctx context.Context, hostID, partnerID, userID, orderType string, params ebicsengine.OrderParams) ([]byte, error) {
	switch orderType {
	case "HTD", "HKD":
		return r.handleHTD(ctx, hostID, partnerID, userID)
	case "C52":
		return r.handleC52(ctx, hostID, partnerID, userID)
	case "C53":
		return r.handleC53(ctx, hostID, partnerID, userID, params)
	case "TSD":
		return r.handleTSD()
	default:
		return nil, fmt.Errorf("orders: unsupported download order type %s", orderType)
	}
}

// ConsumeUpload dispatches an upload order to its handler.
func (r *Registry) ConsumeUpload(ctx context.Context, hostID, partnerID, userID, orderType string, payload []byte) error {
	switch orderType {
	case "CCT":
		return r.handleCCT(ctx, hostID, payload)
	case "PTK":
		return nil // connectivity test, no-op by design
	default:
		return fmt.Errorf("orders: unsupported upload order type %s", orderType)
	}
}

func (r *Registry) account(ctx context.Context, hostID, partnerID, userID string) (ledger.BankAccount, error) {
	return r.subAccounts.AccountFor(ctx, hostID, partnerID, userID)
}

// handleHTD builds the static partner-info document listing the
// subscriber's account and the supported order types (spec.md §4.6).
func (r *Registry) handleHTD(ctx context.Context, hostID, partnerID, userID string) ([]byte, error) {
	account, err := r.account(ctx, hostID, partnerID, userID)
	if err != nil {
		return nil, err
	}

	doc := ebicsxml.PartnerInfo{
		PartnerID:   partnerID,
		AccountIBAN: account.IBAN,
		AccountBIC:  account.BIC,
		OrderTypes:  r.supportedOrders,
		UserID:      userID,
		Permissions: r.supportedOrders,
	}
	return xml.MarshalIndent(&doc, "", "  ")
}

// handleTSD returns a fixed dummy payload used only for connectivity
// tests (spec.md §4.6).
func (r *Registry) handleTSD() ([]byte, error) {
	return []byte(`<TSDResponseOrderData><Status>OK</Status></TSDResponseOrderData>`), nil
}

// currentTime is overridable in tests that need a fixed clock; in
// production it is time.Now.
var currentTime = time.Now
