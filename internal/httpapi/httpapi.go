// Package httpapi wires the EBICS XML endpoint and the companion
// cash-out/config JSON API onto a stdlib net/http.ServeMux — no router
// library appears anywhere in the retrieved corpus, so this is the one
// ambient concern built directly on the standard library (DESIGN.md
// justifies it there).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/sandboxbank/ebicsd/internal/apierror"
	"github.com/sandboxbank/ebicsd/internal/cashout"
	"github.com/sandboxbank/ebicsd/internal/ledger"
	"github.com/sandboxbank/ebicsd/internal/logs"
)

// EnvelopeHandler answers one EBICS envelope with its signed response
// bytes, implemented by *ebicsengine.Engine.
type EnvelopeHandler interface {
	HandleEnvelope(ctx context.Context, raw []byte) ([]byte, error)
}

// AccountDirectory resolves bank accounts and their owning demobank
// for the companion API, implemented over internal/ledger.
type AccountDirectory interface {
	AccountByUsername(ctx context.Context, demobank, username string) (ledger.BankAccount, error)
	Demobank(ctx context.Context, name string) (ledger.Demobank, error)
}

// Server bundles the dependencies the companion handlers need.
type Server struct {
	Envelope EnvelopeHandler
	Accounts AccountDirectory
	Cashouts *cashout.Service
	Demobank string // the single demobank this deployment serves
}

// Mux builds the complete route table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ebics", s.handleEBICS)
	mux.HandleFunc("/cashouts", s.handleCashouts)
	mux.HandleFunc("/cashouts/", s.handleCashoutByUUID)
	mux.HandleFunc("/config", s.handleConfig)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleEBICS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	resp, err := s.Envelope.HandleEnvelope(r.Context(), body)
	if err != nil {
		logs.EBICS.Errorf("handle envelope: %v", err)
		// Every error HandleEnvelope returns, including an EBICS protocol
		// error carrying a return code, is answered with a bare HTTP 400;
		// no signed EBICS error response is built.
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write(resp)
}

type createCashoutRequest struct {
	AmountDebit    string `json:"amount_debit"`
	Subject        string `json:"subject"`
	CashoutAddress string `json:"cashout_address"`
	TanChannel     string `json:"tan_channel"`
	TanAddress     string `json:"tan_address"`
}

type createCashoutResponse struct {
	UUID string `json:"uuid"`
}

type confirmCashoutRequest struct {
	Tan string `json:"tan"`
}

func (s *Server) handleCashouts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createCashout(w, r)
	case http.MethodGet:
		s.estimateCashout(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createCashout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createCashoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.BadRequest(err))
		return
	}

	username := basicAuthUsername(r)
	account, err := s.Accounts.AccountByUsername(ctx, s.Demobank, username)
	if err != nil {
		writeError(w, apierror.NotFound(err))
		return
	}

	demobank, err := s.Accounts.Demobank(ctx, s.Demobank)
	if err != nil {
		writeError(w, apierror.Internal(err))
		return
	}

	debit, err := decimal.NewFromString(req.AmountDebit)
	if err != nil {
		writeError(w, apierror.BadRequest(err))
		return
	}

	op, err := s.Cashouts.Create(ctx, demobank, account, debit, req.Subject,
		req.CashoutAddress, cashout.TanChannel(req.TanChannel), req.TanAddress)
	if err != nil {
		if errors.Is(err, cashout.ErrInstitutionalUser) {
			writeError(w, apierror.Forbidden(err))
			return
		}
		writeError(w, apierror.Internal(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(createCashoutResponse{UUID: op.UUID})
}

func (s *Server) estimateCashout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	demobank, err := s.Accounts.Demobank(ctx, s.Demobank)
	if err != nil {
		writeError(w, apierror.Internal(err))
		return
	}

	regional, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, apierror.BadRequest(err))
		return
	}

	credit := cashout.Estimate(demobank, regional)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"amount_credit": credit.StringFixed(2)})
}

func (s *Server) handleCashoutByUUID(w http.ResponseWriter, r *http.Request) {
	uuid, action, ok := splitCashoutPath(r.URL.Path)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	ctx := r.Context()
	switch {
	case action == "confirm" && r.Method == http.MethodPost:
		s.confirmCashout(w, r, uuid)
	case action == "abort" && r.Method == http.MethodPost:
		if err := s.Cashouts.Abort(ctx, uuid); err != nil {
			writeCashoutError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) confirmCashout(w http.ResponseWriter, r *http.Request, uuid string) {
	var req confirmCashoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierror.BadRequest(err))
		return
	}

	ctx := r.Context()
	username := basicAuthUsername(r)
	account, err := s.Accounts.AccountByUsername(ctx, s.Demobank, username)
	if err != nil {
		writeError(w, apierror.NotFound(err))
		return
	}
	admin, err := s.Accounts.AccountByUsername(ctx, s.Demobank, "admin")
	if err != nil {
		writeError(w, apierror.Internal(err))
		return
	}
	demobank, err := s.Accounts.Demobank(ctx, s.Demobank)
	if err != nil {
		writeError(w, apierror.Internal(err))
		return
	}

	if err := s.Cashouts.Confirm(ctx, demobank, account, admin, uuid, req.Tan); err != nil {
		writeCashoutError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeCashoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cashout.ErrNotFound):
		writeError(w, apierror.NotFound(err))
	case errors.Is(err, cashout.ErrAlreadyConfirmed):
		writeError(w, apierror.Precondition(err))
	case errors.Is(err, cashout.ErrWrongTan):
		writeError(w, apierror.Precondition(err))
	default:
		writeError(w, apierror.Internal(err))
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	demobank, err := s.Accounts.Demobank(ctx, s.Demobank)
	if err != nil {
		writeError(w, apierror.Internal(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"currency":      demobank.Currency,
		"fiat_currency": demobank.FiatCurrency,
		"sell_rate":     demobank.SellRate.String(),
		"sell_fee":      demobank.SellFee.String(),
	})
}

func writeError(w http.ResponseWriter, apiErr *apierror.Error) {
	if apiErr.Status >= 500 {
		logs.RPC.Errorf("%v", apiErr)
	}
	w.WriteHeader(apiErr.Status)
}

func basicAuthUsername(r *http.Request) string {
	username, _, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	return username
}

// splitCashoutPath parses "/cashouts/<uuid>/<action>" or
// "/cashouts/<uuid>".
func splitCashoutPath(path string) (uuid, action string, ok bool) {
	const prefix = "/cashouts/"
	if len(path) <= len(prefix) {
		return "", "", false
	}
	rest := path[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], true
		}
	}
	return rest, "", true
}
