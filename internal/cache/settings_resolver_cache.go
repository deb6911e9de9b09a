package cache

import (
	"strings"
	"time"

	settingsdomain "github.com/smallbiznis/recova/internal/settings/domain"
)

const defaultSettingsTTL = 45 * time.Second

// SettingsResolverCache stores resolved per-shop call settings for
// read-only display surfaces. Scheduling never reads through it: the
// trigger path resolves fresh from the store on every pass.
type SettingsResolverCache interface {
	GetResolved(shop string) (settingsdomain.ResolvedSettings, bool)
	SetResolved(shop string, resolved settingsdomain.ResolvedSettings)
	Invalidate(shop string)
}

type settingsResolverCache struct {
	resolved Cache[string, settingsdomain.ResolvedSettings]
	ttl      time.Duration
}

func NewSettingsResolverCache() SettingsResolverCache {
	return &settingsResolverCache{
		resolved: NewTTLCache[string, settingsdomain.ResolvedSettings](),
		ttl:      defaultSettingsTTL,
	}
}

func (c *settingsResolverCache) GetResolved(shop string) (settingsdomain.ResolvedSettings, bool) {
	return c.resolved.Get(cacheKey(shop))
}

func (c *settingsResolverCache) SetResolved(shop string, resolved settingsdomain.ResolvedSettings) {
	c.resolved.Set(cacheKey(shop), resolved, c.ttl)
}

func (c *settingsResolverCache) Invalidate(shop string) {
	c.resolved.Delete(cacheKey(shop))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
