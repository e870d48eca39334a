package cashout

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sandboxbank/ebicsd/internal/ledger"
	"github.com/sandboxbank/ebicsd/internal/money"
)

// Service implements the cash-out lifecycle (create/confirm/abort)
// described in spec.md §4.8 and scenario S4/S6: convert a regional
// debit into a fiat credit at a captured rate/fee, gate it behind a
// TAN, and on confirmation post the regional DBIT leg from the owner
// to the institutional drain account.
type Service struct {
	pool   *pgxpool.Pool
	ledger *ledger.Ledger
	repo   *Repository
	tan    *TanSender
}

// NewService constructs a Service.
func NewService(pool *pgxpool.Pool, l *ledger.Ledger, repo *Repository, tan *TanSender) *Service {
	return &Service{pool: pool, ledger: l, repo: repo, tan: tan}
}

// Create starts a cash-out: it captures the current rate/fee, computes
// the credited fiat amount, persists a PENDING operation, and delivers
// its TAN. A TAN delivery failure rolls the operation back, per
// spec.md §7.
func (s *Service) Create(ctx context.Context, demobank ledger.Demobank, account ledger.BankAccount,
	amountDebit decimal.Decimal, subject, cashoutAddress string, channel TanChannel, tanAddress string) (*Operation, error) {

	if account.IsAdmin() {
		return nil, ErrInstitutionalUser
	}

	tan, err := NewTan()
	if err != nil {
		return nil, err
	}

	amountCredit := money.ApplySellRate(amountDebit, demobank.SellRate, demobank.SellFee)

	op := Operation{
		UUID:            uuid.NewString(),
		AccountUsername: account.OwnerUsername,
		AmountDebit:      money.Amount{Currency: demobank.Currency, Value: amountDebit}.String(),
		AmountCredit:     money.Amount{Currency: demobank.FiatCurrency, Value: amountCredit}.String(),
		Rate:            demobank.SellRate,
		Fee:             demobank.SellFee,
		Subject:         subject,
		CreatedAt:       time.Now().UTC(),
		TanChannel:      channel,
		CashoutAddress:  cashoutAddress,
		Tan:             tan,
		Status:          StatusPending,
	}

	if err := s.repo.Insert(ctx, s.pool, op); err != nil {
		return nil, fmt.Errorf("cashout: insert operation: %w", err)
	}

	if err := s.tan.Send(ctx, channel, tanAddress, tan); err != nil {
		_ = s.repo.Delete(ctx, s.pool, op.UUID)
		return nil, fmt.Errorf("cashout: deliver tan: %w", err)
	}

	return &op, nil
}

// Confirm validates the supplied TAN, posts the regional DBIT leg from
// the owner to "admin", and marks the operation CONFIRMED. The
// LIBEUFIN_CASHOUT_TEST_TAN environment variable short-circuits the
// stored TAN, as test harnesses cannot intercept external TAN delivery
// commands (spec.md §6).
func (s *Service) Confirm(ctx context.Context, demobank ledger.Demobank, account, admin ledger.BankAccount,
	uuidStr, suppliedTan string) error {

	op, err := s.repo.Get(ctx, s.pool, uuidStr)
	if err != nil {
		return err
	}
	if op.Status == StatusConfirmed {
		return ErrAlreadyConfirmed
	}

	expected := op.Tan
	if override := os.Getenv(TestTanEnvVar); override != "" {
		expected = override
	}
	if suppliedTan != expected {
		return ErrWrongTan
	}

	debitAmount, err := money.ParseAmount(op.AmountDebit)
	if err != nil {
		return err
	}

	_, err = s.ledger.Post(ctx, ledger.PostParams{
		Demobank:      demobank,
		DebitAccount:  account,
		CreditAccount: admin,
		Subject:       op.Subject,
		Amount:        debitAmount.Value,
		Currency:      debitAmount.Currency,
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.repo.Confirm(ctx, s.pool, op.UUID, now)
}

// Abort removes a PENDING operation. Aborting an already-CONFIRMED
// operation is not permitted (spec.md scenario S6).
func (s *Service) Abort(ctx context.Context, uuidStr string) error {
	op, err := s.repo.Get(ctx, s.pool, uuidStr)
	if err != nil {
		return err
	}
	if op.Status == StatusConfirmed {
		return ErrAlreadyConfirmed
	}
	return s.repo.Delete(ctx, s.pool, uuidStr)
}

// Estimate computes the credited amount for a prospective cash-out
// without creating one, backing the `/cashouts/estimates` endpoint.
func Estimate(demobank ledger.Demobank, regional decimal.Decimal) decimal.Decimal {
	return money.ApplySellRate(regional, demobank.SellRate, demobank.SellFee)
}
