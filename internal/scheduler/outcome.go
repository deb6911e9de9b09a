package scheduler

import (
	"github.com/smallbiznis/recova/internal/scheduler/guard"
)

// CandidateOutcome records what happened to one candidate checkout.
type CandidateOutcome struct {
	CheckoutID string           `json:"checkout_id"`
	Enqueued   bool             `json:"enqueued"`
	SkipReason guard.SkipReason `json:"skip_reason,omitempty"`
}

// ShopResult summarizes one shop's detect+enqueue pass.
type ShopResult struct {
	Shop       string             `json:"shop"`
	Marked     int64              `json:"marked"`
	Candidates int                `json:"candidates"`
	Enqueued   int                `json:"enqueued"`
	Outcomes   []CandidateOutcome `json:"outcomes,omitempty"`
	Disabled   bool               `json:"disabled,omitempty"`
	Err        string             `json:"error,omitempty"`
}

// RunResult summarizes a full all-shops pass.
type RunResult struct {
	Shops    []ShopResult `json:"shops"`
	Marked   int64        `json:"marked_total"`
	Enqueued int          `json:"enqueued_total"`
}
