package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// FindByShop returns nil, nil when the shop has no saved row.
	FindByShop(ctx context.Context, db *gorm.DB, shop string) (*CallSettings, error)
	Upsert(ctx context.Context, db *gorm.DB, settings *CallSettings) error
	ListShops(ctx context.Context, db *gorm.DB) ([]string, error)
}
