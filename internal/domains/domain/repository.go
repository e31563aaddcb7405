package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when the domain name is already recorded.
	Insert(ctx context.Context, db *gorm.DB, d *RegisteredDomain) (bool, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*RegisteredDomain, error)
	FindByOrder(ctx context.Context, db *gorm.DB, orderID string) (*RegisteredDomain, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID string, limit int) ([]RegisteredDomain, error)
}
