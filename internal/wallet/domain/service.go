package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	Credit(ctx context.Context, req CreditRequest) (*Posting, error)
	// CreditTx posts inside the caller's transaction so the credit commits
	// together with the caller's own writes.
	CreditTx(ctx context.Context, tx *gorm.DB, req CreditRequest) (*Posting, error)
	Debit(ctx context.Context, req DebitRequest) (*Posting, error)
	Balance(ctx context.Context, ownerID string) (decimal.Decimal, error)
	Entries(ctx context.Context, ownerID string, limit int) ([]Entry, error)
	FindByReference(ctx context.Context, reference string) (*Entry, error)
	// Audit compares every account's balance with the sum of its entries.
	Audit(ctx context.Context) ([]Discrepancy, error)
}
