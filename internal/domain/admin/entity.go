package admin

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuditLog records one operator action
type AuditLog struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	AdminID    uuid.NullUUID   `db:"admin_id" json:"admin_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   uuid.NullUUID   `db:"entity_id" json:"entity_id,omitempty"`
	OldValue   json.RawMessage `db:"old_value" json:"old_value,omitempty"`
	NewValue   json.RawMessage `db:"new_value" json:"new_value,omitempty"`
	Reason     sql.NullString  `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Audit actions
const (
	ActionUserBan          = "user.ban"
	ActionUserUnban        = "user.unban"
	ActionUserRole         = "user.role"
	ActionDepositConfirm   = "deposit.confirm"
	ActionDepositReject    = "deposit.reject"
	ActionDepositRegister  = "deposit.register"
	ActionWithdrawalPay    = "withdrawal.approve"
	ActionWithdrawalReject = "withdrawal.reject"
)

// DashboardStats summarises players and money flow
type DashboardStats struct {
	Players PlayerStats `json:"players"`
	Money   MoneyStats  `json:"money"`
}

type PlayerStats struct {
	Total       int `db:"total" json:"total"`
	NewToday    int `db:"new_today" json:"new_today"`
	NewThisWeek int `db:"new_this_week" json:"new_this_week"`
	Banned      int `db:"banned" json:"banned"`
}

type MoneyStats struct {
	GameFloat          decimal.Decimal `db:"game_float" json:"game_float"`
	WithdrawableFloat  decimal.Decimal `db:"withdrawable_float" json:"withdrawable_float"`
	DepositsConfirmed  decimal.Decimal `db:"deposits_confirmed" json:"deposits_confirmed"`
	WithdrawalsPaid    decimal.Decimal `db:"withdrawals_paid" json:"withdrawals_paid"`
	PendingDeposits    int             `db:"pending_deposits" json:"pending_deposits"`
	PendingWithdrawals int             `db:"pending_withdrawals" json:"pending_withdrawals"`
}
