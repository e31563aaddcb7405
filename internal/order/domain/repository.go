package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Order, error)
	// LockByID reads the order, locking the row for the rest of the
	// transaction where the dialect supports it.
	LockByID(ctx context.Context, db *gorm.DB, id string) (*Order, error)
	// UpdateStatus moves the order from one of from to to and reports
	// whether a row changed.
	UpdateStatus(ctx context.Context, db *gorm.DB, id string, from []OrderStatus, to OrderStatus, reason *string, now time.Time) (bool, error)
	RecordReconciliation(ctx context.Context, db *gorm.DB, id string, rec Reconciliation, now time.Time) (bool, error)
	ListByStatus(ctx context.Context, db *gorm.DB, statuses []OrderStatus, updatedBefore time.Time, limit int) ([]Order, error)
}
