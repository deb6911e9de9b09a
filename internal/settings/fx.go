package settings

import (
	"github.com/smallbiznis/recova/internal/cache"
	"github.com/smallbiznis/recova/internal/settings/repository"
	"github.com/smallbiznis/recova/internal/settings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settings.service",
	fx.Provide(cache.NewSettingsResolverCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
