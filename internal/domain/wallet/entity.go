package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypeWithdrawal    TransactionType = "withdrawal"
	TransactionTypeStake         TransactionType = "stake"
	TransactionTypeWin           TransactionType = "win"
	TransactionTypeRefund        TransactionType = "refund"
	TransactionTypeAdminAdd      TransactionType = "admin_add"
	TransactionTypeAdminSubtract TransactionType = "admin_subtract"
)

// Credits reports whether the type increases the wallet total.
func (t TransactionType) Credits() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWin, TransactionTypeRefund, TransactionTypeAdminAdd:
		return true
	}
	return false
}

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeStake, TransactionTypeWin,
		TransactionTypeRefund, TransactionTypeAdminAdd, TransactionTypeAdminSubtract:
		return true
	}
	return false
}

// Direction is the sign of an admin adjustment.
type Direction string

const (
	DirectionAdd      Direction = "add"
	DirectionSubtract Direction = "subtract"
)

// Wallet holds the two balance tiers of a user.
// GameBalance can only be staked; WithdrawableBalance can be cashed out.
type Wallet struct {
	UserID              uuid.UUID       `db:"user_id" json:"user_id"`
	GameBalance         decimal.Decimal `db:"game_balance" json:"game_balance"`
	WithdrawableBalance decimal.Decimal `db:"withdrawable_balance" json:"withdrawable_balance"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

func (w Wallet) Total() decimal.Decimal {
	return w.GameBalance.Add(w.WithdrawableBalance)
}

func (w Wallet) Balance() Balance {
	return Balance{
		GameBalance:         w.GameBalance,
		WithdrawableBalance: w.WithdrawableBalance,
		Total:               w.Total(),
	}
}

// Balance is the read model returned to players and callers.
type Balance struct {
	GameBalance         decimal.Decimal `json:"game_balance"`
	WithdrawableBalance decimal.Decimal `json:"withdrawable_balance"`
	Total               decimal.Decimal `json:"total"`
}

// Transaction is one append-only ledger row. BalanceBefore and BalanceAfter
// are wallet totals.
type Transaction struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	UserID        uuid.UUID       `db:"user_id" json:"user_id"`
	Type          TransactionType `db:"type" json:"type"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balance_after"`
	Description   string          `db:"description" json:"description"`
	GameID        *uuid.UUID      `db:"game_id" json:"game_id,omitempty"`
	ReferenceID   *string         `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Signed returns the amount with the sign the transaction applied to the total.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type.Credits() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Operation describes a single ledger mutation before it is applied.
type Operation struct {
	Type        TransactionType
	Amount      decimal.Decimal
	Description string
	GameID      *uuid.UUID
	ReferenceID string
}

// Pagination controls simple list pagination.
type Pagination struct {
	Limit  int
	Offset int
}

// SearchFilters provides admin-facing transaction filtering.
type SearchFilters struct {
	UserID   *uuid.UUID
	Type     *TransactionType
	GameID   *uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}
