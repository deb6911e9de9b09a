package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the lifecycle state of a call attempt. The scheduler only
// ever creates queued jobs; the call worker advances them.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusCalling   Status = "calling"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// InFlight reports whether the attempt is not yet resolved. At most one
// in-flight job may exist per (shop, checkout_id); the storage layer
// enforces this with a partial unique index.
func (s Status) InFlight() bool {
	return s == StatusQueued || s == StatusCalling
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// CallJob is one row per call attempt. Rows are append-mostly: the
// scheduler inserts, the worker writes outcomes, nothing is deleted.
type CallJob struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Shop       string       `gorm:"not null;index" json:"shop"`
	CheckoutID string       `gorm:"column:checkout_id;not null" json:"checkout_id"`
	Phone      string       `json:"phone,omitempty"`

	Status       Status    `gorm:"not null" json:"status"`
	Attempts     int       `gorm:"not null;default:0" json:"attempts"`
	ScheduledFor time.Time `gorm:"not null" json:"scheduled_for"`

	// Outcome fields written by the call worker.
	Outcome        string `json:"outcome,omitempty"`
	ProviderCallID string `gorm:"column:provider_call_id" json:"provider_call_id,omitempty"`
	RecordingURL   string `gorm:"column:recording_url" json:"recording_url,omitempty"`
	EndedReason    string `json:"ended_reason,omitempty"`
	Transcript     string `json:"transcript,omitempty"`

	// Attribution fields for revenue-recovery reporting.
	AttributedOrderID string     `gorm:"column:attributed_order_id" json:"attributed_order_id,omitempty"`
	AttributedAmount  *float64   `json:"attributed_amount,omitempty"`
	AttributedAt      *time.Time `json:"attributed_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}
