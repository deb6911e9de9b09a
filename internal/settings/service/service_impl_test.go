package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/recova/internal/cache"
	"github.com/smallbiznis/recova/internal/clock"
	"github.com/smallbiznis/recova/internal/config"
	"github.com/smallbiznis/recova/internal/settings/domain"
	"github.com/smallbiznis/recova/internal/settings/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSettingsService(t *testing.T, resolverCache cache.SettingsResolverCache) (domain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`CREATE TABLE call_settings (
		id INTEGER PRIMARY KEY,
		shop TEXT NOT NULL UNIQUE,
		enabled INTEGER NOT NULL DEFAULT 0,
		delay_minutes INTEGER NOT NULL,
		max_attempts INTEGER NOT NULL,
		retry_minutes INTEGER NOT NULL,
		min_order_value REAL NOT NULL DEFAULT 0,
		currency TEXT,
		call_window_start TEXT,
		call_window_end TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	defaults, err := config.NewSettingsDefaultsHolder()
	require.NoError(t, err)

	svc := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)),
		Repo:     repository.Provide(),
		Defaults: defaults,
		Cache:    resolverCache,
	})
	return svc, db
}

func boolPtr(v bool) *bool        { return &v }
func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }

func TestResolve_NoRowFallsBackToDefaults(t *testing.T) {
	svc, _ := newSettingsService(t, nil)

	resolved, err := svc.Resolve(context.Background(), "new.myshopify.com")
	require.NoError(t, err)
	require.False(t, resolved.Enabled)
	require.Equal(t, 30, resolved.DelayMinutes)
	require.Equal(t, 2, resolved.MaxAttempts)
	require.Equal(t, 180, resolved.RetryMinutes)
	require.Equal(t, "USD", resolved.Currency)
	require.Equal(t, "09:00", resolved.CallWindowStart)
	require.Equal(t, "19:00", resolved.CallWindowEnd)
}

func TestUpdate_PartialOverridesMergeOverDefaults(t *testing.T) {
	svc, _ := newSettingsService(t, nil)
	ctx := context.Background()
	shop := "merge.myshopify.com"

	resolved, err := svc.Update(ctx, shop, domain.UpdateParams{
		Enabled:      boolPtr(true),
		DelayMinutes: intPtr(15),
		Currency:     strPtr("eur"),
	})
	require.NoError(t, err)
	require.True(t, resolved.Enabled)
	require.Equal(t, 15, resolved.DelayMinutes)
	require.Equal(t, "EUR", resolved.Currency)
	// Untouched fields keep the global defaults.
	require.Equal(t, 2, resolved.MaxAttempts)
	require.Equal(t, 180, resolved.RetryMinutes)
	require.Equal(t, "09:00", resolved.CallWindowStart)

	// A second update only touches what it names.
	resolved, err = svc.Update(ctx, shop, domain.UpdateParams{
		MaxAttempts: intPtr(3),
	})
	require.NoError(t, err)
	require.True(t, resolved.Enabled)
	require.Equal(t, 15, resolved.DelayMinutes)
	require.Equal(t, 3, resolved.MaxAttempts)
}

func TestUpdate_Validation(t *testing.T) {
	svc, _ := newSettingsService(t, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, "", domain.UpdateParams{})
	require.ErrorIs(t, err, domain.ErrInvalidShop)

	_, err = svc.Update(ctx, "shop.myshopify.com", domain.UpdateParams{DelayMinutes: intPtr(-1)})
	require.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = svc.Update(ctx, "shop.myshopify.com", domain.UpdateParams{MinOrderValue: floatPtr(-5)})
	require.ErrorIs(t, err, domain.ErrInvalidValue)

	_, err = svc.Update(ctx, "shop.myshopify.com", domain.UpdateParams{CallWindowStart: strPtr("25:99")})
	require.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestResolve_CacheInvalidatedOnUpdate(t *testing.T) {
	resolverCache := cache.NewSettingsResolverCache()
	svc, _ := newSettingsService(t, resolverCache)
	ctx := context.Background()
	shop := "cached.myshopify.com"

	resolved, err := svc.Resolve(ctx, shop)
	require.NoError(t, err)
	require.False(t, resolved.Enabled)

	cached, ok := resolverCache.GetResolved(shop)
	require.True(t, ok)
	require.False(t, cached.Enabled)

	_, err = svc.Update(ctx, shop, domain.UpdateParams{Enabled: boolPtr(true)})
	require.NoError(t, err)

	resolved, err = svc.Resolve(ctx, shop)
	require.NoError(t, err)
	require.True(t, resolved.Enabled)
}

// Resolve must see a write made by another instance immediately; only
// ResolveCached is allowed to serve the stale cached value.
func TestResolve_ReadsStoreEvenWhenCached(t *testing.T) {
	resolverCache := cache.NewSettingsResolverCache()
	svc, db := newSettingsService(t, resolverCache)
	ctx := context.Background()
	shop := "fresh.myshopify.com"

	_, err := svc.Update(ctx, shop, domain.UpdateParams{Enabled: boolPtr(true)})
	require.NoError(t, err)

	// Another instance flips the row in the store; this process gets no
	// invalidation signal.
	require.NoError(t, db.Exec(
		`UPDATE call_settings SET enabled = 0 WHERE shop = ?`, shop,
	).Error)

	cached, err := svc.ResolveCached(ctx, shop)
	require.NoError(t, err)
	require.True(t, cached.Enabled)

	fresh, err := svc.Resolve(ctx, shop)
	require.NoError(t, err)
	require.False(t, fresh.Enabled)

	// The fresh read rewarmed the cache with the current value.
	cached, err = svc.ResolveCached(ctx, shop)
	require.NoError(t, err)
	require.False(t, cached.Enabled)
}

func TestShops_ListsConfiguredShops(t *testing.T) {
	svc, _ := newSettingsService(t, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, "a.myshopify.com", domain.UpdateParams{Enabled: boolPtr(true)})
	require.NoError(t, err)
	_, err = svc.Update(ctx, "b.myshopify.com", domain.UpdateParams{})
	require.NoError(t, err)

	shops, err := svc.Shops(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a.myshopify.com", "b.myshopify.com"}, shops)
}
