package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/smallbiznis/recova/internal/dialer/domain"
	"go.uber.org/zap"
)

// LogProvider is the default provider: it records the call instead of
// placing one. Real telephony integrations replace it in production
// wiring.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) domain.Provider {
	return &LogProvider{log: log.Named("dialer.provider.log")}
}

func (p *LogProvider) Call(ctx context.Context, req domain.CallRequest) (domain.CallResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.CallResult{}, err
	}
	callID := fmt.Sprintf("log-%s", uuid.NewString())
	p.log.Info("outbound call placed",
		zap.String("shop", req.Shop),
		zap.String("checkout_id", req.CheckoutID),
		zap.String("phone", req.Phone),
		zap.Int("attempt", req.Attempt),
		zap.String("provider_call_id", callID),
	)
	return domain.CallResult{
		Outcome:        domain.OutcomeNoAnswer,
		ProviderCallID: callID,
		EndedReason:    "logged",
	}, nil
}
