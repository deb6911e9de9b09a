package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recova/internal/cache"
	"github.com/smallbiznis/recova/internal/clock"
	"github.com/smallbiznis/recova/internal/config"
	"github.com/smallbiznis/recova/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Defaults *config.SettingsDefaultsHolder
	Cache    cache.SettingsResolverCache `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	defaults *config.SettingsDefaultsHolder
	cache    cache.SettingsResolverCache
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("settings.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		defaults: p.Defaults,
		cache:    p.Cache,
	}
}

// Resolve always reads the store. The scheduler resolves once per
// trigger pass through this path, so a settings write on any instance
// takes effect on the next tick.
func (s *Service) Resolve(ctx context.Context, shop string) (domain.ResolvedSettings, error) {
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return domain.ResolvedSettings{}, domain.ErrInvalidShop
	}

	defaults := s.defaults.Get()
	resolved := domain.ResolvedSettings{
		Enabled:         defaults.Enabled,
		DelayMinutes:    defaults.DelayMinutes,
		MaxAttempts:     defaults.MaxAttempts,
		RetryMinutes:    defaults.RetryMinutes,
		MinOrderValue:   defaults.MinOrderValue,
		Currency:        defaults.Currency,
		CallWindowStart: defaults.CallWindowStart,
		CallWindowEnd:   defaults.CallWindowEnd,
	}

	stored, err := s.repo.FindByShop(ctx, s.db, shop)
	if err != nil {
		return domain.ResolvedSettings{}, err
	}
	if stored == nil {
		if s.cache != nil {
			s.cache.SetResolved(shop, resolved)
		}
		return resolved, nil
	}

	resolved.Enabled = stored.Enabled
	if stored.DelayMinutes > 0 {
		resolved.DelayMinutes = stored.DelayMinutes
	}
	if stored.MaxAttempts > 0 {
		resolved.MaxAttempts = stored.MaxAttempts
	}
	if stored.RetryMinutes > 0 {
		resolved.RetryMinutes = stored.RetryMinutes
	}
	if stored.MinOrderValue > 0 {
		resolved.MinOrderValue = stored.MinOrderValue
	}
	if stored.Currency != "" {
		resolved.Currency = stored.Currency
	}
	if stored.CallWindowStart != "" {
		resolved.CallWindowStart = stored.CallWindowStart
	}
	if stored.CallWindowEnd != "" {
		resolved.CallWindowEnd = stored.CallWindowEnd
	}
	if s.cache != nil {
		s.cache.SetResolved(shop, resolved)
	}
	return resolved, nil
}

// ResolveCached serves display reads from the short-lived cache and
// falls back to a fresh Resolve on a miss.
func (s *Service) ResolveCached(ctx context.Context, shop string) (domain.ResolvedSettings, error) {
	if s.cache != nil {
		if cached, ok := s.cache.GetResolved(strings.TrimSpace(shop)); ok {
			return cached, nil
		}
	}
	return s.Resolve(ctx, shop)
}

func (s *Service) Update(ctx context.Context, shop string, params domain.UpdateParams) (domain.ResolvedSettings, error) {
	shop = strings.TrimSpace(shop)
	if shop == "" {
		return domain.ResolvedSettings{}, domain.ErrInvalidShop
	}
	if err := validateUpdate(params); err != nil {
		return domain.ResolvedSettings{}, err
	}

	now := s.clock.Now()
	stored, err := s.repo.FindByShop(ctx, s.db, shop)
	if err != nil {
		return domain.ResolvedSettings{}, err
	}
	if stored == nil {
		stored = &domain.CallSettings{
			ID:        s.genID.Generate(),
			Shop:      shop,
			CreatedAt: now,
		}
	}

	if params.Enabled != nil {
		stored.Enabled = *params.Enabled
	}
	if params.DelayMinutes != nil {
		stored.DelayMinutes = *params.DelayMinutes
	}
	if params.MaxAttempts != nil {
		stored.MaxAttempts = *params.MaxAttempts
	}
	if params.RetryMinutes != nil {
		stored.RetryMinutes = *params.RetryMinutes
	}
	if params.MinOrderValue != nil {
		stored.MinOrderValue = *params.MinOrderValue
	}
	if params.Currency != nil {
		stored.Currency = strings.ToUpper(strings.TrimSpace(*params.Currency))
	}
	if params.CallWindowStart != nil {
		stored.CallWindowStart = *params.CallWindowStart
	}
	if params.CallWindowEnd != nil {
		stored.CallWindowEnd = *params.CallWindowEnd
	}
	stored.UpdatedAt = now

	if err := s.repo.Upsert(ctx, s.db, stored); err != nil {
		return domain.ResolvedSettings{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(shop)
	}
	s.log.Info("settings updated", zap.String("shop", shop))
	return s.Resolve(ctx, shop)
}

func (s *Service) Shops(ctx context.Context) ([]string, error) {
	return s.repo.ListShops(ctx, s.db)
}

func validateUpdate(params domain.UpdateParams) error {
	if params.DelayMinutes != nil && *params.DelayMinutes < 0 {
		return domain.ErrInvalidValue
	}
	if params.MaxAttempts != nil && *params.MaxAttempts < 0 {
		return domain.ErrInvalidValue
	}
	if params.RetryMinutes != nil && *params.RetryMinutes < 0 {
		return domain.ErrInvalidValue
	}
	if params.MinOrderValue != nil && *params.MinOrderValue < 0 {
		return domain.ErrInvalidValue
	}
	if params.CallWindowStart != nil && !validClockTime(*params.CallWindowStart) {
		return domain.ErrInvalidWindow
	}
	if params.CallWindowEnd != nil && !validClockTime(*params.CallWindowEnd) {
		return domain.ErrInvalidWindow
	}
	return nil
}

func validClockTime(s string) bool {
	if s == "" {
		return true
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}
