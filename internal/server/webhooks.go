package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/recova/internal/webhook"
	"go.uber.org/zap"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MiB

// HandleCheckoutWebhook ingests checkout create/update events. The
// response is always 200: upstream platforms retry aggressively on
// non-2xx and disable endpoints that keep failing, so processing
// problems are logged and absorbed here instead.
func (s *Server) HandleCheckoutWebhook(c *gin.Context) {
	shop := strings.TrimSpace(c.GetHeader(HeaderShopDomain))

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		s.log.Warn("webhook body read failed", zap.String("shop", shop), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}

	if !webhook.VerifySignature(s.cfg.WebhookSecret, body, c.GetHeader(HeaderSignature)) {
		s.log.Warn("webhook signature mismatch", zap.String("shop", shop))
		c.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}

	if err := s.webhookSvc.HandleCheckout(c.Request.Context(), shop, body); err != nil {
		s.log.Warn("webhook processing failed",
			zap.String("shop", shop),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusOK, gin.H{"ok": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
