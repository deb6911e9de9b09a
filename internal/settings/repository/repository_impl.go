package repository

import (
	"context"

	"github.com/smallbiznis/recova/internal/settings/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByShop(ctx context.Context, db *gorm.DB, shop string) (*domain.CallSettings, error) {
	var settings domain.CallSettings
	err := db.WithContext(ctx).Raw(
		`SELECT id, shop, enabled, delay_minutes, max_attempts, retry_minutes, min_order_value, currency, call_window_start, call_window_end, created_at, updated_at
		 FROM call_settings WHERE shop = ?`,
		shop,
	).Scan(&settings).Error
	if err != nil {
		return nil, err
	}
	if settings.ID == 0 {
		return nil, nil
	}
	return &settings, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, settings *domain.CallSettings) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE call_settings
		 SET enabled = ?, delay_minutes = ?, max_attempts = ?, retry_minutes = ?, min_order_value = ?, currency = ?, call_window_start = ?, call_window_end = ?, updated_at = ?
		 WHERE shop = ?`,
		settings.Enabled,
		settings.DelayMinutes,
		settings.MaxAttempts,
		settings.RetryMinutes,
		settings.MinOrderValue,
		settings.Currency,
		settings.CallWindowStart,
		settings.CallWindowEnd,
		settings.UpdatedAt,
		settings.Shop,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO call_settings (id, shop, enabled, delay_minutes, max_attempts, retry_minutes, min_order_value, currency, call_window_start, call_window_end, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		settings.ID,
		settings.Shop,
		settings.Enabled,
		settings.DelayMinutes,
		settings.MaxAttempts,
		settings.RetryMinutes,
		settings.MinOrderValue,
		settings.Currency,
		settings.CallWindowStart,
		settings.CallWindowEnd,
		settings.CreatedAt,
		settings.UpdatedAt,
	).Error
}

func (r *repo) ListShops(ctx context.Context, db *gorm.DB) ([]string, error) {
	var shops []string
	err := db.WithContext(ctx).Raw(
		`SELECT shop FROM call_settings ORDER BY shop`,
	).Scan(&shops).Error
	if err != nil {
		return nil, err
	}
	return shops, nil
}
