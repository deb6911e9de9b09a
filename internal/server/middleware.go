package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderCronToken   = "x-cron-token"
	HeaderWorkerToken = "x-worker-token"
	HeaderSignature   = "x-webhook-signature"
	HeaderShopDomain  = "x-shop-domain"
)

// CronTokenRequired gates the external cron trigger. An unset token
// means the deployment has not been locked down; reject everything
// rather than exposing the scheduler.
func (s *Server) CronTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tokenMatches(s.cfg.CronToken, c.GetHeader(HeaderCronToken)) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func (s *Server) WorkerTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !tokenMatches(s.cfg.WorkerToken, c.GetHeader(HeaderWorkerToken)) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func tokenMatches(expected, got string) bool {
	expected = strings.TrimSpace(expected)
	got = strings.TrimSpace(got)
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// WebhookRateLimit throttles per-shop ingest when redis is configured.
// Limiter errors fail open: dropping checkout events costs more than a
// burst getting through.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}
		shop := strings.TrimSpace(c.GetHeader(HeaderShopDomain))
		allowed, err := s.limiter.AllowShop(c.Request.Context(), shop)
		if err != nil {
			s.log.Warn("webhook rate limit check failed", zap.String("shop", shop), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
