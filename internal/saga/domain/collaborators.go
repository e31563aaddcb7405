package domain

import "context"

// Registrar buys domains. Implementations return *provider.Error for
// transport and upstream failures.
type Registrar interface {
	CreateContact(ctx context.Context, identity ContactIdentity) (handle string, err error)
	// RegisterDomain returns ErrDuplicateRegistration when the name is
	// already registered.
	RegisterDomain(ctx context.Context, reg Registration) (domainID string, err error)
	// FindDomain returns ErrRegistrarDomainAbsent when the domain is not in
	// this account.
	FindDomain(ctx context.Context, name string) (domainID string, err error)
}

// DNSHost manages hosted zones.
type DNSHost interface {
	// CreateZone returns ErrZoneExists when the zone is already hosted.
	CreateZone(ctx context.Context, domain string) (Zone, error)
	// GetZone returns ErrZoneNotFound when no zone is hosted for domain.
	GetZone(ctx context.Context, domain string) (Zone, error)
}
