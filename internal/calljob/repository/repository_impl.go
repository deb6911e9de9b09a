package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recova/internal/calljob/domain"
	"github.com/smallbiznis/recova/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *domain.CallJob) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO call_jobs (id, shop, checkout_id, phone, status, attempts, scheduled_for, outcome, provider_call_id, recording_url, ended_reason, transcript, attributed_order_id, attributed_amount, attributed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Shop,
		job.CheckoutID,
		job.Phone,
		job.Status,
		job.Attempts,
		job.ScheduledFor,
		job.Outcome,
		job.ProviderCallID,
		job.RecordingURL,
		job.EndedReason,
		job.Transcript,
		job.AttributedOrderID,
		job.AttributedAmount,
		job.AttributedAt,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) ListByCheckoutIDs(ctx context.Context, db *gorm.DB, shop string, checkoutIDs []string, limit int) ([]*domain.CallJob, error) {
	if len(checkoutIDs) == 0 {
		return nil, nil
	}
	var jobs []*domain.CallJob
	err := db.WithContext(ctx).
		Model(&domain.CallJob{}).
		Where("shop = ? AND checkout_id IN ?", shop, checkoutIDs).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.CallJob, error) {
	var jobs []*domain.CallJob
	err := db.WithContext(ctx).
		Model(&domain.CallJob{}).
		Where("status = ? AND scheduled_for <= ?", domain.StatusQueued, before).
		Order("scheduled_for asc, id asc").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) CountDue(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.CallJob{}).
		Where("status = ? AND scheduled_for <= ?", domain.StatusQueued, before).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) MarkCalling(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE call_jobs
		 SET status = ?, attempts = attempts + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusCalling,
		now,
		id,
		domain.StatusQueued,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, params domain.CompleteParams, now time.Time) error {
	if !params.Status.Terminal() {
		return domain.ErrInvalidStatus
	}
	return db.WithContext(ctx).Exec(
		`UPDATE call_jobs
		 SET status = ?, outcome = ?, provider_call_id = ?, recording_url = ?, ended_reason = ?, transcript = ?, updated_at = ?
		 WHERE id = ?`,
		params.Status,
		params.Outcome,
		params.ProviderCallID,
		params.RecordingURL,
		params.EndedReason,
		params.Transcript,
		now,
		id,
	).Error
}

func (r *repo) AttributeRecovery(ctx context.Context, db *gorm.DB, shop, checkoutID string, cycleStart time.Time, orderID string, amount float64, at time.Time) (bool, error) {
	var job domain.CallJob
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM call_jobs
		 WHERE shop = ? AND checkout_id = ? AND status = ? AND created_at >= ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		shop,
		checkoutID,
		domain.StatusCompleted,
		cycleStart,
	).Scan(&job).Error
	if err != nil {
		return false, err
	}
	if job.ID == 0 {
		return false, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE call_jobs
		 SET attributed_order_id = ?, attributed_amount = ?, attributed_at = ?, updated_at = ?
		 WHERE id = ?`,
		orderID,
		amount,
		at,
		at,
		job.ID,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListByShop(ctx context.Context, db *gorm.DB, shop string, page pagination.Pagination) ([]*domain.CallJob, error) {
	var jobs []*domain.CallJob
	stmt := db.WithContext(ctx).
		Model(&domain.CallJob{}).
		Where("shop = ?", shop)
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
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
