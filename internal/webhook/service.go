package webhook

import (
	"context"
	"errors"

	calljobdomain "github.com/smallbiznis/recova/internal/calljob/domain"
	checkoutdomain "github.com/smallbiznis/recova/internal/checkout/domain"
	"github.com/smallbiznis/recova/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidPayload = errors.New("invalid_payload")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	CheckoutSvc checkoutdomain.Service
	CallJobs    calljobdomain.Repository
}

// Service applies checkout webhooks and credits recovered revenue back
// to the call that earned it.
type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	checkoutSvc checkoutdomain.Service
	callJobs    calljobdomain.Repository
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("webhook.service"),
		clock:       p.Clock,
		checkoutSvc: p.CheckoutSvc,
		callJobs:    p.CallJobs,
	}
}

// HandleCheckout ingests one checkout create/update webhook body.
func (s *Service) HandleCheckout(ctx context.Context, shop string, body []byte) error {
	event, err := ParseCheckoutEvent(shop, body)
	if err != nil {
		return errors.Join(ErrInvalidPayload, err)
	}

	result, err := s.checkoutSvc.ApplyEvent(ctx, event)
	if err != nil {
		return err
	}

	if result.Recovered {
		s.attributeRecovery(ctx, event, result)
	}
	return nil
}

// attributeRecovery is best-effort: a failed attribution write never
// fails the webhook, the checkout state change already landed.
func (s *Service) attributeRecovery(ctx context.Context, event checkoutdomain.CheckoutEvent, result checkoutdomain.ApplyResult) {
	at := s.clock.Now()
	credited, err := s.callJobs.AttributeRecovery(ctx, s.db, event.Shop, event.CheckoutID, result.PriorCycleStart, event.OrderID, event.Value, at)
	if err != nil {
		s.log.Warn("recovery attribution failed",
			zap.String("shop", event.Shop),
			zap.String("checkout_id", event.CheckoutID),
			zap.Error(err),
		)
		return
	}
	if !credited {
		// Recovered without a completed call this cycle (customer came back
		// on their own); nothing to credit.
		return
	}
	s.log.Info("recovery attributed",
		zap.String("shop", event.Shop),
		zap.String("checkout_id", event.CheckoutID),
		zap.String("order_id", event.OrderID),
		zap.Float64("amount", event.Value),
	)
}
