package domain

import "errors"

var (
	// ErrDuplicateRegistration is returned by the registrar when the domain
	// is already registered. The registrar step treats it as success once the
	// domain is found in the account.
	ErrDuplicateRegistration = errors.New("duplicate_registration")
	ErrPersistenceFailure    = errors.New("persistence_failure")
	ErrZoneExists            = errors.New("dns_zone_exists")
	ErrZoneNotFound          = errors.New("dns_zone_not_found")
	ErrRegistrarDomainAbsent = errors.New("registrar_domain_not_found")
	ErrSagaNotFound          = errors.New("saga_not_found")
	ErrNotDomainOrder        = errors.New("not_a_domain_order")
	ErrOrderNotFunded        = errors.New("order_not_funded")
	ErrManualReview          = errors.New("saga_in_manual_review")
	ErrNotInManualReview     = errors.New("saga_not_in_manual_review")
	ErrSagaBusy              = errors.New("saga_already_running")
)
