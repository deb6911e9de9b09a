package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recova/internal/calljob"
	"github.com/smallbiznis/recova/internal/checkout"
	"github.com/smallbiznis/recova/internal/clock"
	"github.com/smallbiznis/recova/internal/config"
	"github.com/smallbiznis/recova/internal/migration"
	"github.com/smallbiznis/recova/internal/observability"
	"github.com/smallbiznis/recova/internal/scheduler"
	"github.com/smallbiznis/recova/internal/settings"
	"github.com/smallbiznis/recova/pkg/db"
	"go.uber.org/fx"
)

// Standalone scheduler loop. No HTTP server; webhook ingest and the
// dashboard stay in cmd/recova.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		checkout.Module,
		calljob.Module,
		settings.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
