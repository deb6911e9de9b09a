package dialer

import (
	"github.com/smallbiznis/recova/internal/dialer/provider"
	"github.com/smallbiznis/recova/internal/dialer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dialer",
	fx.Provide(provider.NewLogProvider),
	fx.Provide(service.New),
)
