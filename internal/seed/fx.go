package seed

import (
	"github.com/smallbiznis/recova/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if !cfg.SeedDemo {
			return nil
		}
		return EnsureDemoShop(conn)
	}),
)
