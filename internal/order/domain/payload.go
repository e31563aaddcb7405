package domain

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

type NameserverMode string

const (
	NameserverManaged   NameserverMode = "managed"
	NameserverRegistrar NameserverMode = "registrar"
	NameserverCustom    NameserverMode = "custom"
)

// ServicePayload is the single validated schema for what an order buys.
// It is fixed when the order is created.
type ServicePayload struct {
	DomainName        string         `json:"domain_name,omitempty"`
	NameserverMode    NameserverMode `json:"nameserver_mode,omitempty"`
	Nameservers       []string       `json:"nameservers,omitempty"`
	ContactEmail      string         `json:"contact_email,omitempty"`
	RegistrationYears int            `json:"registration_years,omitempty"`
}

var domainProfile = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.VerifyDNSLength(true),
	idna.StrictDomainName(true),
)

// NormalizeDomainName lowercases name and converts it to its ASCII form.
func NormalizeDomainName(name string) (string, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if name == "" {
		return "", ErrInvalidDomainName
	}
	ascii, err := domainProfile.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDomainName, err)
	}
	labels := strings.Split(ascii, ".")
	if len(labels) < 2 {
		return "", ErrInvalidDomainName
	}
	for _, label := range labels {
		if label == "" {
			return "", ErrInvalidDomainName
		}
	}
	return strings.ToLower(ascii), nil
}

// Normalize validates p for an order of kind and returns the canonical form.
func (p ServicePayload) Normalize(kind OrderKind) (ServicePayload, error) {
	if kind == KindWalletDeposit {
		return ServicePayload{ContactEmail: strings.TrimSpace(p.ContactEmail)}, nil
	}

	name, err := NormalizeDomainName(p.DomainName)
	if err != nil {
		return ServicePayload{}, err
	}
	out := ServicePayload{
		DomainName:        name,
		NameserverMode:    p.NameserverMode,
		ContactEmail:      strings.TrimSpace(p.ContactEmail),
		RegistrationYears: p.RegistrationYears,
	}
	if out.NameserverMode == "" {
		out.NameserverMode = NameserverManaged
	}
	if out.RegistrationYears <= 0 {
		out.RegistrationYears = 1
	}

	switch out.NameserverMode {
	case NameserverManaged, NameserverRegistrar:
	case NameserverCustom:
		if len(p.Nameservers) < 2 {
			return ServicePayload{}, ErrInvalidNameservers
		}
		for _, ns := range p.Nameservers {
			host, err := NormalizeDomainName(ns)
			if err != nil {
				return ServicePayload{}, fmt.Errorf("%w: %s", ErrInvalidNameservers, ns)
			}
			out.Nameservers = append(out.Nameservers, host)
		}
	default:
		return ServicePayload{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidNameservers, p.NameserverMode)
	}
	return out, nil
}
