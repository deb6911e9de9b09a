package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	// RunInterval is the cadence of the background run loop.
	RunInterval time.Duration

	// AbandonAfter is the fallback inactivity grace before the detector
	// marks a checkout abandoned, used only when a shop's resolved
	// delayMinutes is zero.
	AbandonAfter time.Duration

	// CandidateBatchSize bounds the eligible checkouts fetched per shop
	// per pass.
	CandidateBatchSize int

	// JobFetchCap bounds the call-job history fetched for a whole
	// candidate batch in the single lookup query.
	JobFetchCap int

	// StaleCallingAfter is how long a job may sit in calling before the
	// sweep fails it.
	StaleCallingAfter time.Duration

	// ShopTimeout bounds one shop's detect+enqueue pass.
	ShopTimeout time.Duration

	// RunTimeout bounds a full all-shops pass.
	RunTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:        time.Minute,
		AbandonAfter:       30 * time.Minute,
		CandidateBatchSize: 200,
		JobFetchCap:        2000,
		StaleCallingAfter:  15 * time.Minute,
		ShopTimeout:        30 * time.Second,
		RunTimeout:         5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.AbandonAfter <= 0 {
		c.AbandonAfter = defaults.AbandonAfter
	}
	if c.CandidateBatchSize <= 0 {
		c.CandidateBatchSize = defaults.CandidateBatchSize
	}
	if c.JobFetchCap <= 0 {
		c.JobFetchCap = defaults.JobFetchCap
	}
	if c.StaleCallingAfter <= 0 {
		c.StaleCallingAfter = defaults.StaleCallingAfter
	}
	if c.ShopTimeout <= 0 {
		c.ShopTimeout = defaults.ShopTimeout
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	return c
}
