package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// CheckoutEvent is a normalized upstream checkout create/update payload.
type CheckoutEvent struct {
	Shop       string
	CheckoutID string

	Email    string
	Phone    string
	Value    float64
	Currency string

	ItemsJSON datatypes.JSON
	Raw       datatypes.JSON

	// Completed is set when the upstream payload carries a completion
	// marker (the checkout became an order).
	Completed bool
	OrderID   string

	// OccurredAt is the upstream activity timestamp; zero means "now".
	OccurredAt time.Time
}

// ApplyResult describes what an event did to the stored checkout.
type ApplyResult struct {
	Checkout *Checkout
	Created  bool
	// Recovered is set when a completion event closed an abandoned cycle.
	Recovered bool
	// PriorCycleStart anchors the cycle that just closed. Only set when
	// Recovered is true; attribution needs it because the update clears
	// abandoned_at.
	PriorCycleStart time.Time
}

type Service interface {
	// ApplyEvent upserts the checkout row for an upstream event. Activity
	// events reset OPEN/ABANDONED checkouts toward a fresh engagement
	// cycle; completion events move them to a terminal status. Terminal
	// states are sticky.
	ApplyEvent(ctx context.Context, event CheckoutEvent) (ApplyResult, error)
}

var (
	ErrInvalidShop     = errors.New("invalid_shop")
	ErrInvalidCheckout = errors.New("invalid_checkout")
	ErrNotFound        = errors.New("not_found")
)
