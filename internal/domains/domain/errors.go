package domain

import "errors"

var (
	ErrDomainNotFound = errors.New("domain_not_found")
	ErrInvalidDomain  = errors.New("invalid_domain")
	// ErrDomainTaken means the name is already recorded for another order.
	ErrDomainTaken = errors.New("domain_taken")
)
