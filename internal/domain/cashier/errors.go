package cashier

import "errors"

var (
	ErrBelowMinimum        = errors.New("amount below minimum")
	ErrDuplicateCode       = errors.New("confirmation code already used")
	ErrInvalidCode         = errors.New("confirmation code is empty")
	ErrDepositNotFound     = errors.New("deposit not found")
	ErrWithdrawalNotFound  = errors.New("withdrawal not found")
	ErrNotPending          = errors.New("request already resolved")
	ErrInsufficientBalance = errors.New("insufficient withdrawable balance")
)

// ErrAmountMismatch is returned when an operator registers a payment whose
// amount differs from the player's pending claim for the same code.
var ErrAmountMismatch = errors.New("registered amount differs from the pending claim")
