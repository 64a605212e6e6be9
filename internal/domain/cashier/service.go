package cashier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/domain/admin"
	"github.com/royalbingo/bingo-api/internal/domain/wallet"
	"github.com/royalbingo/bingo-api/internal/pkg/metrics"
	"github.com/royalbingo/bingo-api/internal/pkg/retry"
	"github.com/royalbingo/bingo-api/internal/pkg/telegram"
)

// Wallet is the slice of the ledger the cashier drives
type Wallet interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*wallet.Balance, error)
	Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*wallet.Balance, error)
	Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*wallet.Balance, error)
}

// Auditor records operator decisions
type Auditor interface {
	LogAction(ctx context.Context, adminID uuid.UUID, action, entityType string, entityID uuid.UUID, reason string, oldValue, newValue interface{})
}

type Config struct {
	MinDeposit    decimal.Decimal
	MinWithdrawal decimal.Decimal
}

// Service handles deposit and withdrawal requests. Balances only move when
// an operator resolves a request, through idempotent ledger references.
type Service struct {
	repo     Repository
	wallet   Wallet
	notifier telegram.Notifier
	audit    Auditor
	cfg      Config
	policy   retry.Policy
	now      func() time.Time
	notifyWG sync.WaitGroup

	// withdrawLocks serialize the pending-total check per user.
	withdrawLocks [64]sync.Mutex
}

func (s *Service) withdrawLock(userID uuid.UUID) *sync.Mutex {
	return &s.withdrawLocks[int(userID[15])%len(s.withdrawLocks)]
}

func NewService(repo Repository, w Wallet, notifier telegram.Notifier, audit Auditor, cfg Config) *Service {
	if notifier == nil {
		notifier = telegram.NopNotifier{}
	}
	return &Service{
		repo:     repo,
		wallet:   w,
		notifier: notifier,
		audit:    audit,
		cfg:      cfg,
		policy:   retry.Default(5*time.Second, func(err error) bool { return errors.Is(err, wallet.ErrStorage) }),
		now:      time.Now,
	}
}

// DepositRequest is a player's claim of a sent payment
type DepositRequest struct {
	UserID uuid.UUID
	Name   string
	Amount decimal.Decimal
	Method string
	Code   string
}

// CreateDeposit files a pending deposit. A code an operator already
// registered as unmatched is credited immediately; any other reuse of a
// code is a duplicate.
func (s *Service) CreateDeposit(ctx context.Context, req DepositRequest) (*Deposit, error) {
	if req.Amount.LessThan(s.cfg.MinDeposit) {
		return nil, ErrBelowMinimum
	}
	code := NormalizeCode(req.Code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	existing, err := s.repo.GetDepositByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != StatusUnmatched {
			metrics.CashierRequests.WithLabelValues("deposit", "duplicate").Inc()
			return nil, ErrDuplicateCode
		}
		return s.claimUnmatched(ctx, existing.ID, req.UserID)
	}

	d := &Deposit{
		UserID:           uuid.NullUUID{UUID: req.UserID, Valid: true},
		Amount:           req.Amount,
		PaymentMethod:    req.Method,
		ConfirmationCode: code,
		Status:           StatusPending,
	}
	// The unique index catches a concurrent claim of the same code.
	if err := s.repo.CreateDeposit(ctx, d); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			metrics.CashierRequests.WithLabelValues("deposit", "duplicate").Inc()
		}
		return nil, err
	}
	metrics.CashierRequests.WithLabelValues("deposit", string(StatusPending)).Inc()

	s.notify(fmt.Sprintf("💰 <b>New deposit request</b>\n\nPlayer: %s\nAmount: %s\nMethod: %s\nCode: <code>%s</code>\nID: <code>%s</code>",
		req.Name, d.Amount.StringFixed(2), d.PaymentMethod, d.ConfirmationCode, d.ID))
	return d, nil
}

func (s *Service) claimUnmatched(ctx context.Context, id, userID uuid.UUID) (*Deposit, error) {
	d, err := s.repo.UpdateDeposit(ctx, id, func(d *Deposit) error {
		if d.Status != StatusUnmatched {
			return ErrDuplicateCode
		}
		d.UserID = uuid.NullUUID{UUID: userID, Valid: true}
		return s.credit(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	metrics.CashierRequests.WithLabelValues("deposit", string(StatusConfirmed)).Inc()
	log.Info().Str("deposit_id", d.ID.String()).Str("user_id", userID.String()).Msg("Unmatched deposit claimed")
	return d, nil
}

// credit posts the deposit to the ledger and marks it confirmed
func (s *Service) credit(ctx context.Context, d *Deposit) error {
	err := retry.Exec(ctx, s.policy, "cashier deposit", func(ctx context.Context) error {
		_, err := s.wallet.Deposit(ctx, d.UserID.UUID, d.Amount, "Deposit via "+d.PaymentMethod, depositRef(d.ID))
		return err
	})
	if err != nil {
		return err
	}
	d.Status = StatusConfirmed
	d.ResolvedAt = sql.NullTime{Time: s.now(), Valid: true}
	return nil
}

// ConfirmDeposit credits a pending deposit
func (s *Service) ConfirmDeposit(ctx context.Context, adminID, id uuid.UUID) (*Deposit, error) {
	d, err := s.repo.UpdateDeposit(ctx, id, func(d *Deposit) error {
		if d.Status != StatusPending || !d.UserID.Valid {
			return ErrNotPending
		}
		return s.credit(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	metrics.CashierRequests.WithLabelValues("deposit", string(StatusConfirmed)).Inc()
	s.audit.LogAction(ctx, adminID, admin.ActionDepositConfirm, "deposit", d.ID, "",
		nil, map[string]string{"amount": d.Amount.String(), "user_id": d.UserID.UUID.String()})
	return d, nil
}

// RejectDeposit closes a pending deposit without moving money
func (s *Service) RejectDeposit(ctx context.Context, adminID, id uuid.UUID, reason string) (*Deposit, error) {
	d, err := s.repo.UpdateDeposit(ctx, id, func(d *Deposit) error {
		if d.Status != StatusPending {
			return ErrNotPending
		}
		d.Status = StatusRejected
		d.ResolvedAt = sql.NullTime{Time: s.now(), Valid: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CashierRequests.WithLabelValues("deposit", string(StatusRejected)).Inc()
	s.audit.LogAction(ctx, adminID, admin.ActionDepositReject, "deposit", d.ID, reason, nil, nil)
	return d, nil
}

// RegisterPayment records a payment the operator saw arrive. A matching
// pending claim is confirmed, otherwise the code waits as unmatched.
func (s *Service) RegisterPayment(ctx context.Context, adminID uuid.UUID, amount decimal.Decimal, method, code string) (*Deposit, error) {
	if !amount.IsPositive() {
		return nil, ErrBelowMinimum
	}
	code = NormalizeCode(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	existing, err := s.repo.GetDepositByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status != StatusPending {
			return nil, ErrDuplicateCode
		}
		if !existing.Amount.Equal(amount) {
			return nil, ErrAmountMismatch
		}
		return s.ConfirmDeposit(ctx, adminID, existing.ID)
	}

	d := &Deposit{
		Amount:           amount,
		PaymentMethod:    method,
		ConfirmationCode: code,
		Status:           StatusUnmatched,
	}
	if err := s.repo.CreateDeposit(ctx, d); err != nil {
		return nil, err
	}

	metrics.CashierRequests.WithLabelValues("deposit", string(StatusUnmatched)).Inc()
	s.audit.LogAction(ctx, adminID, admin.ActionDepositRegister, "deposit", d.ID, "",
		nil, map[string]string{"amount": amount.String(), "code": code})
	return d, nil
}

// WithdrawalRequest asks for a payout to an external account
type WithdrawalRequest struct {
	UserID  uuid.UUID
	Name    string
	Amount  decimal.Decimal
	Method  string
	Account string
}

// RequestWithdrawal files a pending withdrawal. Funds stay in the wallet
// until an operator approves; pending requests count against the balance.
func (s *Service) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*Withdrawal, error) {
	if req.Amount.LessThan(s.cfg.MinWithdrawal) {
		return nil, ErrBelowMinimum
	}

	mu := s.withdrawLock(req.UserID)
	mu.Lock()
	defer mu.Unlock()

	balance, err := s.wallet.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	pending := StatusPending
	open, err := s.repo.ListWithdrawals(ctx, ListFilter{UserID: &req.UserID, Status: &pending, Limit: 100})
	if err != nil {
		return nil, err
	}
	committed := req.Amount
	for _, w := range open {
		committed = committed.Add(w.Amount)
	}
	if balance.WithdrawableBalance.LessThan(committed) {
		return nil, ErrInsufficientBalance
	}

	w := &Withdrawal{
		UserID:        req.UserID,
		Amount:        req.Amount,
		PaymentMethod: req.Method,
		AccountNumber: req.Account,
		Status:        StatusPending,
	}
	if err := s.repo.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}
	metrics.CashierRequests.WithLabelValues("withdrawal", string(StatusPending)).Inc()

	s.notify(fmt.Sprintf("💸 <b>New withdrawal request</b>\n\nPlayer: %s\nAmount: %s\nMethod: %s\nAccount: <code>%s</code>\nID: <code>%s</code>",
		req.Name, w.Amount.StringFixed(2), w.PaymentMethod, w.AccountNumber, w.ID))
	return w, nil
}

// ApproveWithdrawal debits the withdrawable tier. When the player no longer
// has the funds the request stays pending.
func (s *Service) ApproveWithdrawal(ctx context.Context, adminID, id uuid.UUID) (*Withdrawal, error) {
	w, err := s.repo.UpdateWithdrawal(ctx, id, func(w *Withdrawal) error {
		if w.Status != StatusPending {
			return ErrNotPending
		}
		err := retry.Exec(ctx, s.policy, "cashier withdraw", func(ctx context.Context) error {
			_, err := s.wallet.Withdraw(ctx, w.UserID, w.Amount, "Withdrawal via "+w.PaymentMethod, withdrawalRef(w.ID))
			return err
		})
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			return ErrInsufficientBalance
		}
		if err != nil {
			return err
		}
		w.Status = StatusApproved
		w.ResolvedAt = sql.NullTime{Time: s.now(), Valid: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CashierRequests.WithLabelValues("withdrawal", string(StatusApproved)).Inc()
	s.audit.LogAction(ctx, adminID, admin.ActionWithdrawalPay, "withdrawal", w.ID, "",
		nil, map[string]string{"amount": w.Amount.String(), "user_id": w.UserID.String()})
	return w, nil
}

// RejectWithdrawal closes a pending withdrawal without moving money
func (s *Service) RejectWithdrawal(ctx context.Context, adminID, id uuid.UUID, reason string) (*Withdrawal, error) {
	w, err := s.repo.UpdateWithdrawal(ctx, id, func(w *Withdrawal) error {
		if w.Status != StatusPending {
			return ErrNotPending
		}
		w.Status = StatusRejected
		w.ResolvedAt = sql.NullTime{Time: s.now(), Valid: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CashierRequests.WithLabelValues("withdrawal", string(StatusRejected)).Inc()
	s.audit.LogAction(ctx, adminID, admin.ActionWithdrawalReject, "withdrawal", w.ID, reason, nil, nil)
	return w, nil
}

func (s *Service) ListDeposits(ctx context.Context, filter ListFilter) ([]Deposit, error) {
	return s.repo.ListDeposits(ctx, filter)
}

func (s *Service) ListWithdrawals(ctx context.Context, filter ListFilter) ([]Withdrawal, error) {
	return s.repo.ListWithdrawals(ctx, filter)
}

// notify pings the operator chat without holding up the request
func (s *Service) notify(text string) {
	s.notifyWG.Add(1)
	go func() {
		defer s.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.Notify(ctx, text); err != nil {
			log.Error().Err(err).Msg("Failed to notify admin")
		}
	}()
}

// Wait blocks until queued operator notifications finish
func (s *Service) Wait() {
	s.notifyWG.Wait()
}
