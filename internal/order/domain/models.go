package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderKind string

const (
	KindDomainRegistration OrderKind = "domain_registration"
	KindWalletDeposit      OrderKind = "wallet_deposit"
)

type OrderStatus string

const (
	StatusPending     OrderStatus = "pending"
	StatusReconciled  OrderStatus = "reconciled"
	StatusFunded      OrderStatus = "funded"
	StatusSagaRunning OrderStatus = "saga_running"
	StatusCompleted   OrderStatus = "completed"
	StatusFailed      OrderStatus = "failed"
	StatusCanceled    OrderStatus = "canceled"
	StatusExpired     OrderStatus = "expired"
)

// transitions is the order status DAG. Anything not listed is a backward
// or skipping move and is rejected.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:     {StatusReconciled, StatusCanceled, StatusExpired},
	StatusReconciled:  {StatusFunded, StatusFailed, StatusCompleted, StatusCanceled},
	StatusFunded:      {StatusSagaRunning, StatusFailed},
	StatusSagaRunning: {StatusCompleted, StatusFailed},
}

// CanTransition reports whether from → to is an edge of the status DAG.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled, StatusExpired:
		return true
	default:
		return false
	}
}

// Cancelable reports whether funds have not moved yet.
func (s OrderStatus) Cancelable() bool {
	return s == StatusPending || s == StatusReconciled
}

type Classification string

const (
	ClassificationExact     Classification = "exact"
	ClassificationOverpaid  Classification = "overpaid"
	ClassificationUnderpaid Classification = "underpaid"
)

type Order struct {
	ID             string                              `gorm:"primaryKey"`
	OwnerID        string                              `gorm:"not null;index"`
	Kind           OrderKind                           `gorm:"not null"`
	ExpectedAmount decimal.Decimal                     `gorm:"type:numeric(20,8);not null"`
	Asset          string                              `gorm:"not null"`
	PaymentAddress string                              `gorm:"not null"`
	Status         OrderStatus                         `gorm:"not null;index"`
	ServicePayload datatypes.JSONType[ServicePayload] `gorm:"type:json"`

	SettlementAmount decimal.NullDecimal `gorm:"type:numeric(20,8)"`
	ReceivedCrypto   decimal.NullDecimal `gorm:"type:numeric(30,12)"`
	Classification   *Classification
	PaidTxHash       *string
	RateDegraded     bool `gorm:"not null;default:false"`
	FailureReason    *string

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

// Payload returns the validated service payload fixed at creation.
func (o *Order) Payload() ServicePayload {
	return o.ServicePayload.Data()
}

// Reconciliation is what the reconciler learned about a confirmed payment.
type Reconciliation struct {
	Classification   Classification
	SettlementAmount decimal.Decimal
	ReceivedCrypto   decimal.Decimal
	Delta            decimal.Decimal
	TxHash           string
	RateDegraded     bool
}

type CreateOrderRequest struct {
	ID             string
	OwnerID        string
	Kind           OrderKind
	ExpectedAmount decimal.Decimal
	Asset          string
	PaymentAddress string
	Payload        ServicePayload
}
