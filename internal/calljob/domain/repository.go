package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recova/pkg/db/pagination"
	"gorm.io/gorm"
)

// CompleteParams is the worker's outcome write-back.
type CompleteParams struct {
	Status         Status
	Outcome        string
	ProviderCallID string
	RecordingURL   string
	EndedReason    string
	Transcript     string
}

type Repository interface {
	// Insert creates a new queued attempt. A unique-constraint violation
	// surfaces unchanged so callers can treat the race as benign.
	Insert(ctx context.Context, db *gorm.DB, job *CallJob) error

	// ListByCheckoutIDs fetches all jobs for a candidate batch in one
	// query, newest-first, capped at limit. This is the anti-N+1 path the
	// scheduler partitions into per-cycle views.
	ListByCheckoutIDs(ctx context.Context, db *gorm.DB, shop string, checkoutIDs []string, limit int) ([]*CallJob, error)

	ListDue(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*CallJob, error)
	CountDue(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)

	// MarkCalling claims a queued job for execution. Returns false when
	// another worker already claimed it.
	MarkCalling(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	Complete(ctx context.Context, db *gorm.DB, id snowflake.ID, params CompleteParams, now time.Time) error

	// AttributeRecovery stamps the most recent completed attempt of the
	// current cycle with the recovered order. Returns false when the cycle
	// has no completed attempt to credit.
	AttributeRecovery(ctx context.Context, db *gorm.DB, shop, checkoutID string, cycleStart time.Time, orderID string, amount float64, at time.Time) (bool, error)

	ListByShop(ctx context.Context, db *gorm.DB, shop string, page pagination.Pagination) ([]*CallJob, error)
}

var (
	ErrInvalidStatus = errors.New("invalid_status")
)
