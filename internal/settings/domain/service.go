package domain

import (
	"context"
	"errors"
)

// UpdateParams carries a merchant's settings write. Pointer fields
// distinguish "not provided" from a zero value.
type UpdateParams struct {
	Enabled         *bool    `json:"enabled,omitempty"`
	DelayMinutes    *int     `json:"delay_minutes,omitempty"`
	MaxAttempts     *int     `json:"max_attempts,omitempty"`
	RetryMinutes    *int     `json:"retry_minutes,omitempty"`
	MinOrderValue   *float64 `json:"min_order_value,omitempty"`
	Currency        *string  `json:"currency,omitempty"`
	CallWindowStart *string  `json:"call_window_start,omitempty"`
	CallWindowEnd   *string  `json:"call_window_end,omitempty"`
}

type Service interface {
	// Resolve merges the shop's stored settings over the global defaults.
	// A missing row resolves to the defaults (calls disabled). Every call
	// reads the store: scheduling triggers must see a write made by
	// another instance on their very next pass.
	Resolve(ctx context.Context, shop string) (ResolvedSettings, error)
	// ResolveCached is Resolve behind a short TTL, for read-only display
	// surfaces that tolerate brief staleness. Never use it to drive
	// scheduling decisions.
	ResolveCached(ctx context.Context, shop string) (ResolvedSettings, error)
	Update(ctx context.Context, shop string, params UpdateParams) (ResolvedSettings, error)
	// Shops lists every shop that has saved settings.
	Shops(ctx context.Context) ([]string, error)
}

var (
	ErrInvalidShop   = errors.New("invalid_shop")
	ErrInvalidWindow = errors.New("invalid_call_window")
	ErrInvalidValue  = errors.New("invalid_setting_value")
)
