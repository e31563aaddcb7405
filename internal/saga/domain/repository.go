package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, orderID string) (*State, error)
	// Upsert writes the whole row keyed by order id.
	Upsert(ctx context.Context, db *gorm.DB, state *State) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]State, error)
}
