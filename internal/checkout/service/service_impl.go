package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recova/internal/checkout/domain"
	"github.com/smallbiznis/recova/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("checkout.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) ApplyEvent(ctx context.Context, event domain.CheckoutEvent) (domain.ApplyResult, error) {
	shop := strings.TrimSpace(event.Shop)
	if shop == "" {
		return domain.ApplyResult{}, domain.ErrInvalidShop
	}
	checkoutID := strings.TrimSpace(event.CheckoutID)
	if checkoutID == "" {
		return domain.ApplyResult{}, domain.ErrInvalidCheckout
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = s.clock.Now()
	}
	occurredAt = occurredAt.UTC()

	existing, err := s.repo.FindByExternalID(ctx, s.db, shop, checkoutID)
	if err != nil {
		return domain.ApplyResult{}, err
	}

	if existing == nil {
		status := domain.StatusOpen
		if event.Completed {
			status = domain.StatusConverted
		}
		checkout := &domain.Checkout{
			ID:         s.genID.Generate(),
			Shop:       shop,
			CheckoutID: checkoutID,
			Status:     status,
			Value:      event.Value,
			Currency:   event.Currency,
			Email:      event.Email,
			Phone:      event.Phone,
			ItemsJSON:  event.ItemsJSON,
			Raw:        event.Raw,
			CreatedAt:  occurredAt,
			UpdatedAt:  occurredAt,
		}
		if err := s.repo.Insert(ctx, s.db, checkout); err != nil {
			return domain.ApplyResult{}, err
		}
		return domain.ApplyResult{Checkout: checkout, Created: true}, nil
	}

	// Terminal states are sticky: late or replayed events must not reopen
	// a converted/recovered checkout.
	if existing.Status.Terminal() {
		return domain.ApplyResult{Checkout: existing}, nil
	}

	recovered := false
	priorCycleStart := existing.CycleStart()
	if event.Completed {
		if existing.Status == domain.StatusAbandoned {
			existing.Status = domain.StatusRecovered
			recovered = true
		} else {
			existing.Status = domain.StatusConverted
		}
		existing.AbandonedAt = nil
	} else {
		// Any other activity starts a fresh engagement cycle.
		existing.Status = domain.StatusOpen
		existing.AbandonedAt = nil
	}

	existing.Value = event.Value
	existing.Currency = event.Currency
	existing.Email = event.Email
	existing.Phone = event.Phone
	if len(event.ItemsJSON) > 0 {
		existing.ItemsJSON = event.ItemsJSON
	}
	if len(event.Raw) > 0 {
		existing.Raw = event.Raw
	}
	existing.UpdatedAt = occurredAt

	if err := s.repo.Update(ctx, s.db, existing); err != nil {
		return domain.ApplyResult{}, err
	}
	result := domain.ApplyResult{Checkout: existing, Recovered: recovered}
	if recovered {
		result.PriorCycleStart = priorCycleStart
	}
	return result, nil
}
