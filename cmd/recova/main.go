package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recova/internal/clock"
	"github.com/smallbiznis/recova/internal/config"
	"github.com/smallbiznis/recova/internal/migration"
	"github.com/smallbiznis/recova/internal/observability"
	"github.com/smallbiznis/recova/internal/scheduler"
	"github.com/smallbiznis/recova/internal/seed"
	"github.com/smallbiznis/recova/internal/server"
	"github.com/smallbiznis/recova/pkg/db"
	"go.uber.org/fx"
)

// The monolith: webhook ingest, dashboard API, scheduler loop and call
// worker in one process. apps/scheduler runs the background loop alone
// for split deployments.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		seed.Module,

		server.Module,
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
