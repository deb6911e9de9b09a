package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/recova/internal/checkout/domain"
	"github.com/smallbiznis/recova/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, checkout *domain.Checkout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO checkouts (id, shop, checkout_id, status, value, currency, email, phone, items_json, raw, abandoned_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		checkout.ID,
		checkout.Shop,
		checkout.CheckoutID,
		checkout.Status,
		checkout.Value,
		checkout.Currency,
		checkout.Email,
		checkout.Phone,
		checkout.ItemsJSON,
		checkout.Raw,
		checkout.AbandonedAt,
		checkout.CreatedAt,
		checkout.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, checkout *domain.Checkout) error {
	return db.WithContext(ctx).Exec(
		`UPDATE checkouts
		 SET status = ?, value = ?, currency = ?, email = ?, phone = ?, items_json = ?, raw = ?, abandoned_at = ?, updated_at = ?
		 WHERE shop = ? AND checkout_id = ?`,
		checkout.Status,
		checkout.Value,
		checkout.Currency,
		checkout.Email,
		checkout.Phone,
		checkout.ItemsJSON,
		checkout.Raw,
		checkout.AbandonedAt,
		checkout.UpdatedAt,
		checkout.Shop,
		checkout.CheckoutID,
	).Error
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, shop, checkoutID string) (*domain.Checkout, error) {
	var checkout domain.Checkout
	err := db.WithContext(ctx).Raw(
		`SELECT id, shop, checkout_id, status, value, currency, email, phone, items_json, raw, abandoned_at, created_at, updated_at
		 FROM checkouts WHERE shop = ? AND checkout_id = ?`,
		shop,
		checkoutID,
	).Scan(&checkout).Error
	if err != nil {
		return nil, err
	}
	if checkout.ID == 0 {
		return nil, nil
	}
	return &checkout, nil
}

func (r *repo) MarkAbandoned(ctx context.Context, db *gorm.DB, shop string, cutoff, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE checkouts
		 SET status = ?, abandoned_at = ?
		 WHERE shop = ? AND status = ? AND abandoned_at IS NULL AND updated_at < ?`,
		domain.StatusAbandoned,
		now,
		shop,
		domain.StatusOpen,
		cutoff,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) ListEligible(ctx context.Context, db *gorm.DB, shop string, minValue float64, limit int) ([]*domain.Checkout, error) {
	var checkouts []*domain.Checkout
	err := db.WithContext(ctx).Raw(
		`SELECT id, shop, checkout_id, status, value, currency, email, phone, items_json, raw, abandoned_at, created_at, updated_at
		 FROM checkouts
		 WHERE shop = ?
		   AND status = ?
		   AND phone IS NOT NULL AND phone <> ''
		   AND value >= ?
		   AND abandoned_at IS NOT NULL
		 ORDER BY abandoned_at DESC
		 LIMIT ?`,
		shop,
		domain.StatusAbandoned,
		minValue,
		limit,
	).Scan(&checkouts).Error
	if err != nil {
		return nil, err
	}
	return checkouts, nil
}

func (r *repo) ListByShop(ctx context.Context, db *gorm.DB, shop string, filter domain.ListCheckoutFilter, page pagination.Pagination) ([]*domain.Checkout, error) {
	var checkouts []*domain.Checkout
	stmt := db.WithContext(ctx).
		Model(&domain.Checkout{}).
		Where("shop = ?", shop)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	err := stmt.
		Order("created_at desc, id desc").
		Limit(pageSize + 1).
		Find(&checkouts).Error
	if err != nil {
		return nil, err
	}
	return checkouts, nil
}

func (r *repo) DistinctShops(ctx context.Context, db *gorm.DB) ([]string, error) {
	var shops []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT shop FROM checkouts ORDER BY shop`,
	).Scan(&shops).Error
	if err != nil {
		return nil, err
	}
	return shops, nil
}
