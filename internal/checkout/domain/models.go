package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the commercial state of a checkout.
type Status string

const (
	StatusOpen      Status = "open"
	StatusAbandoned Status = "abandoned"
	StatusConverted Status = "converted"
	StatusRecovered Status = "recovered"
)

// Terminal reports whether the status is sticky: once a checkout converts
// or is recovered, later activity events must not reopen it.
func (s Status) Terminal() bool {
	return s == StatusConverted || s == StatusRecovered
}

// Checkout is one row per (shop, checkout_id). Never deleted; history is
// retained for the dashboard.
type Checkout struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Shop       string       `gorm:"not null;index" json:"shop"`
	CheckoutID string       `gorm:"column:checkout_id;not null" json:"checkout_id"`

	Status   Status  `gorm:"not null" json:"status"`
	Value    float64 `gorm:"not null;default:0" json:"value"`
	Currency string  `json:"currency,omitempty"`

	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	ItemsJSON datatypes.JSON `gorm:"column:items_json" json:"items_json,omitempty"`
	Raw       datatypes.JSON `gorm:"column:raw" json:"-"`

	// AbandonedAt marks the start of the current abandonment cycle. It is
	// non-null iff Status is abandoned; cleared whenever the checkout is
	// touched again or completes.
	AbandonedAt *time.Time `json:"abandoned_at,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// CycleStart returns the anchor of the current abandonment cycle. Falls
// back to the last-activity timestamp when abandoned_at is missing.
func (c *Checkout) CycleStart() time.Time {
	if c.AbandonedAt != nil {
		return *c.AbandonedAt
	}
	return c.UpdatedAt
}
