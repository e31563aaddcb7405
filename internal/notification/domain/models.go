package domain

import (
	"time"

	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
)

// Kind selects the template of a user notification.
type Kind string

const (
	KindDomainRegistered   Kind = "domain_registered"
	KindRegistrationFailed Kind = "registration_failed_refunded"
	KindUnderpaidCredited  Kind = "underpaid_credited"
	KindDepositCredited    Kind = "deposit_credited"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDomainRegistered, KindRegistrationFailed, KindUnderpaidCredited, KindDepositCredited:
		return true
	default:
		return false
	}
}

// Payload carries template values. Keys are snake_case.
type Payload map[string]string

// Recipient is where a user notification is delivered. Either field may be
// empty; channels skip recipients they cannot address.
type Recipient struct {
	OwnerID string
	ChatID  string
	Email   string
}

// RecipientFor addresses the owner of an order. Owners are identified by
// their Telegram chat id; the payload contact email is optional.
func RecipientFor(order *orderdomain.Order) Recipient {
	if order == nil {
		return Recipient{}
	}
	return Recipient{
		OwnerID: order.OwnerID,
		ChatID:  order.OwnerID,
		Email:   order.Payload().ContactEmail,
	}
}

type Notification struct {
	ID        string
	Recipient Recipient
	Kind      Kind
	Payload   Payload
	CreatedAt time.Time
}

// Message is a rendered notification.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is an operator-facing message. Operator alerts are raised for
// persistence exhaustion, fatal provider errors and ledger mismatches.
type Alert struct {
	Severity Severity
	Title    string
	OrderID  string
	Message  string
	Fields   map[string]string
}
