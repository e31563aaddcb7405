package domain

import "errors"

var (
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrInvalidOrder         = errors.New("invalid_order")
	ErrInvalidKind          = errors.New("invalid_order_kind")
	ErrInvalidAmount        = errors.New("invalid_expected_amount")
	ErrInvalidDomainName    = errors.New("invalid_domain_name")
	ErrInvalidNameservers   = errors.New("invalid_nameservers")
	ErrInvalidTransition    = errors.New("invalid_status_transition")
	ErrConcurrentTransition = errors.New("concurrent_status_transition")
	ErrNotCancelable        = errors.New("order_not_cancelable")
	ErrOrderExists          = errors.New("order_already_exists")
)
