package cashier

import "github.com/shopspring/decimal"

// CreateDepositRequest for POST /deposits
type CreateDepositRequest struct {
	Amount           decimal.Decimal `json:"amount" validate:"money"`
	PaymentMethod    string          `json:"payment_method" validate:"required,payment_method"`
	ConfirmationCode string          `json:"confirmation_code" validate:"required,max=100"`
}

// CreateWithdrawalRequest for POST /withdrawals
type CreateWithdrawalRequest struct {
	Amount        decimal.Decimal `json:"amount" validate:"money"`
	PaymentMethod string          `json:"payment_method" validate:"required,payment_method"`
	AccountNumber string          `json:"account_number" validate:"required,min=4,max=64"`
}

// RegisterPaymentRequest for POST /admin/deposits/register
type RegisterPaymentRequest struct {
	Amount           decimal.Decimal `json:"amount" validate:"money"`
	PaymentMethod    string          `json:"payment_method" validate:"required,payment_method"`
	ConfirmationCode string          `json:"confirmation_code" validate:"required,max=100"`
}

// ResolveRequest carries an optional operator note on rejection
type ResolveRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}
