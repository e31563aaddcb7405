package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	EnsureAccount(ctx context.Context, db *gorm.DB, ownerID string, now time.Time) error
	// LockAccount reads the account row, locking it for the rest of the
	// transaction where the dialect supports it.
	LockAccount(ctx context.Context, db *gorm.DB, ownerID string) (*Account, error)
	FindAccount(ctx context.Context, db *gorm.DB, ownerID string) (*Account, error)
	ListAccounts(ctx context.Context, db *gorm.DB, afterOwnerID string, limit int) ([]Account, error)
	// UpdateBalance writes balance if the row is still at version.
	UpdateBalance(ctx context.Context, db *gorm.DB, ownerID string, balance decimal.Decimal, version int64, now time.Time) (bool, error)

	// InsertEntry reports false when the reference is already taken.
	InsertEntry(ctx context.Context, db *gorm.DB, entry *Entry) (bool, error)
	FindEntryByReference(ctx context.Context, db *gorm.DB, reference string) (*Entry, error)
	ListEntries(ctx context.Context, db *gorm.DB, ownerID string, limit int) ([]Entry, error)
	ListEntryAmounts(ctx context.Context, db *gorm.DB, ownerID string) ([]decimal.Decimal, error)
}
