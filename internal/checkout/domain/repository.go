package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/recova/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListCheckoutFilter struct {
	Status Status
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, checkout *Checkout) error
	Update(ctx context.Context, db *gorm.DB, checkout *Checkout) error
	FindByExternalID(ctx context.Context, db *gorm.DB, shop, checkoutID string) (*Checkout, error)

	// MarkAbandoned promotes open checkouts whose last activity is older
	// than cutoff. Guarded by abandoned_at IS NULL so re-running is a no-op.
	MarkAbandoned(ctx context.Context, db *gorm.DB, shop string, cutoff, now time.Time) (int64, error)

	// ListEligible returns abandoned checkouts with a phone and at least
	// minValue, most recently abandoned first, capped at limit.
	ListEligible(ctx context.Context, db *gorm.DB, shop string, minValue float64, limit int) ([]*Checkout, error)

	ListByShop(ctx context.Context, db *gorm.DB, shop string, filter ListCheckoutFilter, page pagination.Pagination) ([]*Checkout, error)
	DistinctShops(ctx context.Context, db *gorm.DB) ([]string, error)
}
