package checkout

import (
	"github.com/smallbiznis/recova/internal/checkout/repository"
	"github.com/smallbiznis/recova/internal/checkout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
