package server

import (
	"time"

	domainsdomain "github.com/smallbiznis/domainpay/internal/domains/domain"
	orderdomain "github.com/smallbiznis/domainpay/internal/order/domain"
	paymentdomain "github.com/smallbiznis/domainpay/internal/payment/domain"
	sagadomain "github.com/smallbiznis/domainpay/internal/saga/domain"
	walletdomain "github.com/smallbiznis/domainpay/internal/wallet/domain"
)

type orderView struct {
	ID               string                     `json:"id"`
	OwnerID          string                     `json:"owner_id"`
	Kind             string                     `json:"kind"`
	Status           string                     `json:"status"`
	ExpectedAmount   string                     `json:"expected_amount"`
	Asset            string                     `json:"asset"`
	PaymentAddress   string                     `json:"payment_address"`
	Payload          orderdomain.ServicePayload `json:"service_payload"`
	SettlementAmount *string                    `json:"settlement_amount,omitempty"`
	ReceivedCrypto   *string                    `json:"received_crypto,omitempty"`
	Classification   *string                    `json:"classification,omitempty"`
	PaidTxHash       *string                    `json:"paid_tx_hash,omitempty"`
	RateDegraded     bool                       `json:"rate_degraded"`
	FailureReason    *string                    `json:"failure_reason,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
	UpdatedAt        time.Time                  `json:"updated_at"`
}

func newOrderView(o *orderdomain.Order) orderView {
	v := orderView{
		ID:             o.ID,
		OwnerID:        o.OwnerID,
		Kind:           string(o.Kind),
		Status:         string(o.Status),
		ExpectedAmount: o.ExpectedAmount.String(),
		Asset:          o.Asset,
		PaymentAddress: o.PaymentAddress,
		Payload:        o.Payload(),
		PaidTxHash:     o.PaidTxHash,
		RateDegraded:   o.RateDegraded,
		FailureReason:  o.FailureReason,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if o.SettlementAmount.Valid {
		amount := o.SettlementAmount.Decimal.String()
		v.SettlementAmount = &amount
	}
	if o.ReceivedCrypto.Valid {
		amount := o.ReceivedCrypto.Decimal.String()
		v.ReceivedCrypto = &amount
	}
	if o.Classification != nil {
		class := string(*o.Classification)
		v.Classification = &class
	}
	return v
}

type eventView struct {
	ID             string     `json:"id"`
	Gateway        string     `json:"gateway"`
	GatewayEventID string     `json:"gateway_event_id"`
	Asset          string     `json:"asset"`
	CryptoAmount   string     `json:"crypto_amount"`
	Confirmations  int        `json:"confirmations"`
	TxHash         string     `json:"tx_hash"`
	Outcome        *string    `json:"outcome,omitempty"`
	ReceivedAt     time.Time  `json:"received_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

func newEventView(r paymentdomain.Record) eventView {
	v := eventView{
		ID:             r.ID.String(),
		Gateway:        r.Gateway,
		GatewayEventID: r.GatewayEventID,
		Asset:          r.Asset,
		CryptoAmount:   r.CryptoAmount.String(),
		Confirmations:  r.Confirmations,
		TxHash:         r.TxHash,
		ReceivedAt:     r.ReceivedAt,
		ProcessedAt:    r.ProcessedAt,
	}
	if r.Outcome != nil {
		outcome := string(*r.Outcome)
		v.Outcome = &outcome
	}
	return v
}

type sagaView struct {
	OrderID               string     `json:"order_id"`
	Status                string     `json:"status"`
	CurrentStep           string     `json:"current_step"`
	ContactHandle         *string    `json:"contact_handle,omitempty"`
	DNSZoneID             *string    `json:"dns_zone_id,omitempty"`
	Nameservers           []string   `json:"nameservers"`
	DNSDegraded           bool       `json:"dns_degraded"`
	RegistrarDomainID     *string    `json:"registrar_domain_id,omitempty"`
	DuplicateRegistration bool       `json:"duplicate_registration"`
	Attempts              sagaTries  `json:"attempts"`
	LastError             *string    `json:"last_error,omitempty"`
	ManualReview          bool       `json:"manual_review"`
	Compensated           bool       `json:"compensated"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

type sagaTries struct {
	Contact     int `json:"contact"`
	DNS         int `json:"dns"`
	Registrar   int `json:"registrar"`
	Persistence int `json:"persistence"`
}

func newSagaView(s *sagadomain.State) sagaView {
	return sagaView{
		OrderID:               s.OrderID,
		Status:                string(s.Status),
		CurrentStep:           string(s.CurrentStep),
		ContactHandle:         s.ContactHandle,
		DNSZoneID:             s.DNSZoneID,
		Nameservers:           []string(s.Nameservers),
		DNSDegraded:           s.DNSDegraded,
		RegistrarDomainID:     s.RegistrarDomainID,
		DuplicateRegistration: s.DuplicateRegistration,
		Attempts: sagaTries{
			Contact:     s.ContactAttempts,
			DNS:         s.DNSAttempts,
			Registrar:   s.RegistrarAttempts,
			Persistence: s.PersistAttempts,
		},
		LastError:    s.LastError,
		ManualReview: s.ManualReview,
		Compensated:  s.Compensated,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		CompletedAt:  s.CompletedAt,
	}
}

type entryView struct {
	ID           string    `json:"id"`
	Amount       string    `json:"amount"`
	BalanceAfter string    `json:"balance_after"`
	Reason       string    `json:"reason"`
	OrderID      *string   `json:"order_id,omitempty"`
	Reference    *string   `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func newEntryView(e walletdomain.Entry) entryView {
	return entryView{
		ID:           e.ID.String(),
		Amount:       e.Amount.String(),
		BalanceAfter: e.BalanceAfter.String(),
		Reason:       string(e.Reason),
		OrderID:      e.OrderID,
		Reference:    e.Reference,
		CreatedAt:    e.CreatedAt,
	}
}

type domainView struct {
	ID                string    `json:"id"`
	DomainName        string    `json:"domain_name"`
	OwnerID           string    `json:"owner_id"`
	OrderID           string    `json:"order_id"`
	RegistrarDomainID string    `json:"registrar_domain_id"`
	DNSZoneID         *string   `json:"dns_zone_id,omitempty"`
	Nameservers       []string  `json:"nameservers"`
	DNSDegraded       bool      `json:"dns_degraded"`
	Status            string    `json:"status"`
	RegisteredAt      time.Time `json:"registered_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

func newDomainView(d *domainsdomain.RegisteredDomain) domainView {
	return domainView{
		ID:                d.ID.String(),
		DomainName:        d.DomainName,
		OwnerID:           d.OwnerID,
		OrderID:           d.OrderID,
		RegistrarDomainID: d.RegistrarDomainID,
		DNSZoneID:         d.DNSZoneID,
		Nameservers:       []string(d.Nameservers),
		DNSDegraded:       d.DNSDegraded,
		Status:            string(d.Status),
		RegisteredAt:      d.RegisteredAt,
		ExpiresAt:         d.ExpiresAt,
	}
}
