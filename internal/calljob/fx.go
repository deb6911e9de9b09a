package calljob

import (
	"github.com/smallbiznis/recova/internal/calljob/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("calljob",
	fx.Provide(repository.Provide),
)
