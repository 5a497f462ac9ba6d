package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/migration"
	"github.com/smallbiznis/payway/internal/outbox"
	"github.com/smallbiznis/payway/internal/server"
	"github.com/smallbiznis/payway/internal/webhook"
	"github.com/smallbiznis/payway/pkg/db"
	"github.com/smallbiznis/payway/pkg/log"
	"go.uber.org/fx"
)

// The monolith deployment: HTTP API plus the outbox and webhook pollers in
// one process.
func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		server.Module,

		fx.Invoke(outbox.StartPoller),
		fx.Invoke(webhook.StartDispatcher),
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
