package cashier

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status of a deposit or withdrawal request
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed" // deposits
	StatusApproved  Status = "approved"  // withdrawals
	StatusRejected  Status = "rejected"
	// StatusUnmatched marks a payment an operator saw arrive before any
	// player claimed its code.
	StatusUnmatched Status = "unmatched"
)

// Deposit is a player's claim that money was sent, identified by the
// provider's transaction code.
type Deposit struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	UserID           uuid.NullUUID   `db:"user_id" json:"user_id,omitempty"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod    string          `db:"payment_method" json:"payment_method"`
	ConfirmationCode string          `db:"confirmation_code" json:"confirmation_code"`
	Status           Status          `db:"status" json:"status"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt       sql.NullTime    `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Withdrawal is a payout request against the withdrawable tier
type Withdrawal struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	UserID        uuid.UUID       `db:"user_id" json:"user_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	AccountNumber string          `db:"account_number" json:"account_number"`
	Status        Status          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt    sql.NullTime    `db:"resolved_at" json:"resolved_at,omitempty"`
}

func depositRef(id uuid.UUID) string    { return "deposit:" + id.String() }
func withdrawalRef(id uuid.UUID) string { return "withdrawal:" + id.String() }
