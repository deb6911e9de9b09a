package testing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
	"gorm.io/gorm"
)

// TimeAccelerator fast-forwards call schedules so staging environments
// do not have to wait out real delay windows.
type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// FastForwardJob moves one queued job's scheduled_for to a minute ago
// so the next worker pass picks it up.
func (ta *TimeAccelerator) FastForwardJob(ctx context.Context, jobID snowflake.ID) error {
	now := time.Now().UTC()
	return ta.db.WithContext(ctx).Exec(
		`UPDATE call_jobs
		 SET scheduled_for = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		now.Add(-1*time.Minute),
		now,
		jobID,
		calljobdomain.StatusQueued,
	).Error
}

// FastForwardAllQueued makes every queued job due immediately.
func (ta *TimeAccelerator) FastForwardAllQueued(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	result := ta.db.WithContext(ctx).Exec(
		`UPDATE call_jobs
		 SET scheduled_for = ?, updated_at = ?
		 WHERE status = ? AND scheduled_for > ?`,
		now.Add(-1*time.Minute),
		now,
		calljobdomain.StatusQueued,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// FastForwardShop makes a single shop's queued jobs due immediately.
func (ta *TimeAccelerator) FastForwardShop(ctx context.Context, shop string) (int64, error) {
	now := time.Now().UTC()
	result := ta.db.WithContext(ctx).Exec(
		`UPDATE call_jobs
		 SET scheduled_for = ?, updated_at = ?
		 WHERE shop = ? AND status = ? AND scheduled_for > ?`,
		now.Add(-1*time.Minute),
		now,
		shop,
		calljobdomain.StatusQueued,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// JobInfo shows a job's scheduling state for debugging.
type JobInfo struct {
	ID           snowflake.ID
	Shop         string
	CheckoutID   string
	Status       calljobdomain.Status
	ScheduledFor time.Time
	TimeUntilDue time.Duration
	Due          bool
}

func (ta *TimeAccelerator) GetJobInfo(ctx context.Context, jobID snowflake.ID) (*JobInfo, error) {
	var job struct {
		ID           snowflake.ID
		Shop         string
		CheckoutID   string
		Status       calljobdomain.Status
		ScheduledFor time.Time
	}

	err := ta.db.WithContext(ctx).Raw(
		`SELECT id, shop, checkout_id, status, scheduled_for
		 FROM call_jobs
		 WHERE id = ?`,
		jobID,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &JobInfo{
		ID:           job.ID,
		Shop:         job.Shop,
		CheckoutID:   job.CheckoutID,
		Status:       job.Status,
		ScheduledFor: job.ScheduledFor,
		TimeUntilDue: job.ScheduledFor.Sub(now),
		Due:          !now.Before(job.ScheduledFor) && job.Status == calljobdomain.StatusQueued,
	}, nil
}

// RequeueFailed reopens a failed job for another attempt (testing only).
func (ta *TimeAccelerator) RequeueFailed(ctx context.Context, jobID snowflake.ID) error {
	now := time.Now().UTC()
	return ta.db.WithContext(ctx).Exec(
		`UPDATE call_jobs
		 SET status = ?,
		     outcome = '',
		     ended_reason = '',
		     scheduled_for = ?,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		calljobdomain.StatusQueued,
		now.Add(-1*time.Minute),
		now,
		jobID,
		calljobdomain.StatusFailed,
	).Error
}
