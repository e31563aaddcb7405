package domain

import "errors"

var (
	ErrInvalidOwner        = errors.New("invalid_owner")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidReason       = errors.New("invalid_ledger_reason")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrConcurrentUpdate    = errors.New("concurrent_balance_update")
	ErrReferenceMismatch   = errors.New("ledger_reference_mismatch")
)
