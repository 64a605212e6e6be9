package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/royalbingo/bingo-api/internal/pkg/metrics"
)

type Service struct {
	repo   Repository
	policy Policy
	cache  *BalanceCache
}

func NewService(repo Repository, depositThreshold decimal.Decimal) *Service {
	return &Service{repo: repo, policy: Policy{DepositThreshold: depositThreshold}}
}

// SetCache enables the Redis balance cache.
func (s *Service) SetCache(cache *BalanceCache) {
	s.cache = cache
}

func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(2))
}

func (s *Service) EnsureWallet(ctx context.Context, userID uuid.UUID) error {
	return s.repo.EnsureWallet(ctx, userID)
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	if b, ok := s.cache.Get(ctx, userID); ok {
		return b, nil
	}

	version := s.cache.Version(ctx, userID)
	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	b := w.Balance()
	s.cache.Set(ctx, userID, version, b)
	return &b, nil
}

func (s *Service) apply(ctx context.Context, userID uuid.UUID, op Operation, fn Mutator) (*Balance, error) {
	if !validAmount(op.Amount) {
		return nil, ErrInvalidAmount
	}

	w, t, err := s.repo.Apply(ctx, userID, op, fn)
	if err != nil {
		metrics.WalletOperations.WithLabelValues(string(op.Type), resultLabel(err)).Inc()
		return nil, err
	}
	s.cache.Invalidate(ctx, userID)
	metrics.WalletOperations.WithLabelValues(string(op.Type), "ok").Inc()

	log.Info().
		Str("user_id", userID.String()).
		Str("type", string(op.Type)).
		Str("amount", op.Amount.String()).
		Str("balance_after", t.BalanceAfter.String()).
		Str("reference_id", op.ReferenceID).
		Msg("wallet transaction applied")

	b := w.Balance()
	return &b, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrInsufficientForSubtraction):
		return "insufficient"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	default:
		return "rejected"
	}
}

// Deposit credits a confirmed deposit using the tier policy.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*Balance, error) {
	if description == "" {
		description = "Deposit"
	}
	op := Operation{Type: TransactionTypeDeposit, Amount: amount, Description: description, ReferenceID: referenceID}
	return s.apply(ctx, userID, op, func(w Wallet, lifetime decimal.Decimal) (Wallet, error) {
		return s.policy.Deposit(w, amount, lifetime.Add(amount)), nil
	})
}

// Withdraw debits the withdrawable tier.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description, referenceID string) (*Balance, error) {
	if description == "" {
		description = "Withdrawal"
	}
	op := Operation{Type: TransactionTypeWithdrawal, Amount: amount, Description: description, ReferenceID: referenceID}
	return s.apply(ctx, userID, op, func(w Wallet, _ decimal.Decimal) (Wallet, error) {
		return s.policy.Withdraw(w, amount)
	})
}

// Stake takes a game entry fee. referenceID makes retries safe.
func (s *Service) Stake(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, gameID uuid.UUID, referenceID string) (*Balance, error) {
	if referenceID == "" {
		return nil, ErrMissingReference
	}
	op := Operation{
		Type:        TransactionTypeStake,
		Amount:      amount,
		Description: fmt.Sprintf("Stake for game %s", gameID),
		ReferenceID: referenceID,
	}
	if gameID != uuid.Nil {
		op.GameID = &gameID
	}
	return s.apply(ctx, userID, op, func(w Wallet, _ decimal.Decimal) (Wallet, error) {
		return s.policy.Stake(w, amount)
	})
}

// Win pays a prize. At most one win is recorded per user and game.
func (s *Service) Win(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, gameID uuid.UUID) (*Balance, error) {
	op := Operation{
		Type:        TransactionTypeWin,
		Amount:      amount,
		Description: fmt.Sprintf("Won game %s", gameID),
		GameID:      &gameID,
		ReferenceID: "win:" + gameID.String(),
	}
	return s.apply(ctx, userID, op, func(w Wallet, lifetime decimal.Decimal) (Wallet, error) {
		return s.policy.Win(w, amount, lifetime), nil
	})
}

// Refund returns a stake to the game tier. gameID may be uuid.Nil.
func (s *Service) Refund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, gameID uuid.UUID, reason, referenceID string) (*Balance, error) {
	op := Operation{Type: TransactionTypeRefund, Amount: amount, Description: reason, ReferenceID: referenceID}
	if gameID != uuid.Nil {
		op.GameID = &gameID
	}
	return s.apply(ctx, userID, op, func(w Wallet, _ decimal.Decimal) (Wallet, error) {
		return s.policy.Refund(w, amount), nil
	})
}

func (s *Service) AdminAdjust(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, direction Direction, reason string) (*Balance, error) {
	txType := TransactionTypeAdminAdd
	switch direction {
	case DirectionAdd:
	case DirectionSubtract:
		txType = TransactionTypeAdminSubtract
	default:
		return nil, ErrInvalidDirection
	}
	if reason == "" {
		reason = "Admin adjustment"
	}

	op := Operation{Type: txType, Amount: amount, Description: reason}
	return s.apply(ctx, userID, op, func(w Wallet, _ decimal.Decimal) (Wallet, error) {
		return s.policy.Adjust(w, amount, direction)
	})
}

func (s *Service) GetTransactionHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, Pagination{Limit: limit, Offset: offset})
}

func (s *Service) SearchTransactions(ctx context.Context, filters SearchFilters) ([]Transaction, error) {
	return s.repo.SearchTransactions(ctx, filters)
}

// GameTransactions returns every ledger row tagged with gameID.
func (s *Service) GameTransactions(ctx context.Context, gameID uuid.UUID) ([]Transaction, error) {
	const page = 200
	var out []Transaction
	for offset := 0; ; offset += page {
		txs, err := s.repo.SearchTransactions(ctx, SearchFilters{GameID: &gameID, Limit: page, Offset: offset})
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
		if len(txs) < page {
			return out, nil
		}
	}
}

// Reconciliation compares a wallet with the replayed ledger.
type Reconciliation struct {
	UserID      uuid.UUID       `json:"user_id"`
	WalletTotal decimal.Decimal `json:"wallet_total"`
	LedgerTotal decimal.Decimal `json:"ledger_total"`
	Balanced    bool            `json:"balanced"`
}

func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	w, err := s.repo.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.LedgerTotal(ctx, userID)
	if err != nil {
		return nil, err
	}

	rec := &Reconciliation{
		UserID:      userID,
		WalletTotal: w.Total(),
		LedgerTotal: total,
		Balanced:    w.Total().Equal(total),
	}
	if !rec.Balanced {
		log.Error().
			Str("user_id", userID.String()).
			Str("wallet_total", rec.WalletTotal.String()).
			Str("ledger_total", rec.LedgerTotal.String()).
			Msg("wallet does not match ledger")
	}
	return rec, nil
}
