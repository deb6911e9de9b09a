package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/recova/internal/config"
)

const (
	keyWebhookShop = "webhook:ingest:shop:%s"
	keyCronRunLock = "cron:run:lock"

	cronLockTTL = 2 * time.Minute
)

// WebhookLimiter throttles per-shop webhook ingest and serializes cron
// passes across instances. Disabled config yields a nil limiter, and a
// nil limiter allows everything.
type WebhookLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	shopRate  float64
	shopBurst int
}

func NewWebhookLimiter(cfg config.Config) (*WebhookLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.WebhookRate <= 0 || limitCfg.WebhookBurst <= 0 {
		return nil, errors.New("webhook rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &WebhookLimiter{
		enabled:   true,
		bucket:    NewTokenBucket(client),
		locker:    NewLocker(client),
		shopRate:  limitCfg.WebhookRate,
		shopBurst: limitCfg.WebhookBurst,
	}, nil
}

func (l *WebhookLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowShop fails open on redis errors: dropping a checkout event costs
// more than letting a burst through.
func (l *WebhookLimiter) AllowShop(ctx context.Context, shop string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookShop, strings.TrimSpace(shop)), l.shopRate, l.shopBurst)
}

// TryLockCronRun claims the cross-instance cron lock. Callers must
// Release with the returned token.
func (l *WebhookLimiter) TryLockCronRun(ctx context.Context) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, keyCronRunLock, cronLockTTL)
}

func (l *WebhookLimiter) ReleaseCronRun(ctx context.Context, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, keyCronRunLock, token)
}
