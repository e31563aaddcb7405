package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Reason string

const (
	ReasonDeposit            Reason = "deposit"
	ReasonOverpaymentCredit  Reason = "overpayment_credit"
	ReasonUnderpaymentCredit Reason = "underpayment_credit"
	ReasonDebit              Reason = "debit"
	ReasonRefund             Reason = "refund"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonDeposit, ReasonOverpaymentCredit, ReasonUnderpaymentCredit, ReasonDebit, ReasonRefund:
		return true
	default:
		return false
	}
}

// Account is the materialized balance. It is only written together with a
// ledger entry.
type Account struct {
	OwnerID   string          `gorm:"primaryKey"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Version   int64           `gorm:"not null"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (Account) TableName() string { return "wallet_accounts" }

// Entry is an append-only balance mutation. Amount is signed.
type Entry struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	OwnerID      string          `gorm:"not null;index"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Reason       Reason          `gorm:"not null"`
	OrderID      *string
	Reference    *string   `gorm:"uniqueIndex"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (Entry) TableName() string { return "ledger_entries" }

type CreditRequest struct {
	OwnerID string
	Amount  decimal.Decimal
	Reason  Reason
	OrderID string
	// Reference makes the credit idempotent. A second credit with the same
	// reference returns the first entry and changes nothing.
	Reference string
}

type DebitRequest struct {
	OwnerID   string
	Amount    decimal.Decimal
	Reason    Reason
	OrderID   string
	Reference string
}

// Posting is the result of a credit or debit.
type Posting struct {
	Entry     Entry
	Balance   decimal.Decimal
	Duplicate bool
}

// Discrepancy is an owner whose entries do not sum to the stored balance.
type Discrepancy struct {
	OwnerID  string
	Balance  decimal.Decimal
	EntrySum decimal.Decimal
}

// PaymentReference is the idempotency reference for a payment credit.
func PaymentReference(orderID, txHash string) string {
	return "payment:" + orderID + ":" + txHash
}

func RefundReference(orderID string) string {
	return "refund:" + orderID
}
