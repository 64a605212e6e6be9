package wallet

import "errors"

var (
	ErrInvalidAmount              = errors.New("invalid amount")
	ErrMissingReference           = errors.New("missing reference")
	ErrInsufficientFunds          = errors.New("insufficient wallet balance")
	ErrInsufficientForSubtraction = errors.New("insufficient balance for subtraction")
	ErrWalletNotFound             = errors.New("wallet not found")
	ErrInvalidDirection           = errors.New("invalid adjustment direction")
	ErrDuplicateReference         = errors.New("duplicate reference")
	ErrReferenceConflict          = errors.New("reference conflicts with different amount")

	// ErrStorage wraps transient database failures. Callers may retry.
	ErrStorage = errors.New("wallet storage failure")
)
