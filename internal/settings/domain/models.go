package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CallSettings is a shop's saved call configuration. Zero-value fields
// fall back to global defaults at resolve time; the row stores what the
// merchant explicitly chose.
type CallSettings struct {
	ID   snowflake.ID `gorm:"primaryKey" json:"id"`
	Shop string       `gorm:"uniqueIndex;not null" json:"shop"`

	Enabled         bool    `gorm:"not null;default:false" json:"enabled"`
	DelayMinutes    int     `gorm:"not null" json:"delay_minutes"`
	MaxAttempts     int     `gorm:"not null" json:"max_attempts"`
	RetryMinutes    int     `gorm:"not null" json:"retry_minutes"`
	MinOrderValue   float64 `gorm:"not null;default:0" json:"min_order_value"`
	Currency        string  `json:"currency"`
	CallWindowStart string  `gorm:"column:call_window_start" json:"call_window_start"`
	CallWindowEnd   string  `gorm:"column:call_window_end" json:"call_window_end"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (CallSettings) TableName() string {
	return "call_settings"
}

// ResolvedSettings is the effective configuration the scheduler uses for
// a shop: the stored row merged over global defaults.
type ResolvedSettings struct {
	Enabled         bool    `json:"enabled"`
	DelayMinutes    int     `json:"delay_minutes"`
	MaxAttempts     int     `json:"max_attempts"`
	RetryMinutes    int     `json:"retry_minutes"`
	MinOrderValue   float64 `json:"min_order_value"`
	Currency        string  `json:"currency"`
	CallWindowStart string  `json:"call_window_start"`
	CallWindowEnd   string  `json:"call_window_end"`
}
