package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Event is a gateway notification normalized by an adapter.
type Event struct {
	Gateway        string
	GatewayEventID string
	OrderID        string
	Asset          string
	Amount         decimal.Decimal
	Confirmations  int
	TxHash         string
	// RawPayload is the canonical JSON form of what the gateway sent.
	RawPayload []byte
}

// PayloadHash identifies one physical notification.
func (e Event) PayloadHash() string {
	sum := sha256.Sum256(e.RawPayload)
	return hex.EncodeToString(sum[:])
}

// Record is a stored payment event. Rows are written once on receipt; only
// the claim and processing markers change afterwards.
type Record struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	OrderID        string          `gorm:"not null;uniqueIndex:ux_payment_events_order_payload"`
	Gateway        string          `gorm:"not null"`
	GatewayEventID string          `gorm:"not null"`
	PayloadHash    string          `gorm:"not null;uniqueIndex:ux_payment_events_order_payload"`
	Asset          string          `gorm:"not null"`
	CryptoAmount   decimal.Decimal `gorm:"type:numeric(30,12);not null"`
	Confirmations  int             `gorm:"not null"`
	TxHash         string          `gorm:"not null"`
	RawPayload     datatypes.JSON  `gorm:"type:jsonb"`
	Outcome        *Outcome
	ReceivedAt     time.Time `gorm:"not null"`
	ClaimedAt      *time.Time
	ProcessedAt    *time.Time
}

func (Record) TableName() string { return "payment_events" }

type Admission string

const (
	AdmissionFirstSeen Admission = "first_seen"
	AdmissionDuplicate Admission = "duplicate"
)

type Outcome string

const (
	OutcomeAwaitingConfirmations Outcome = "awaiting_confirmations"
	OutcomeFunded                Outcome = "funded"
	OutcomeUnderpaid             Outcome = "underpaid"
	OutcomeDeposited             Outcome = "deposited"
	OutcomeStrayDeposit          Outcome = "stray_deposit"
	OutcomeAlreadySettled        Outcome = "already_settled"
	OutcomeDuplicate             Outcome = "duplicate"
	// Outcomes that are never stored: the event is not recorded.
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnknownOrder Outcome = "unknown_order"
)

// Result is what the pipeline tells the webhook caller.
type Result struct {
	Admission   Admission
	Outcome     Outcome
	OrderID     string
	OrderStatus string
	Credited    decimal.Decimal
}

// WebhookRequest carries the parts of an inbound HTTP delivery the adapters
// look at.
type WebhookRequest struct {
	Method  string
	Body    []byte
	Query   map[string][]string
	Headers map[string][]string
}
