package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/merchant"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	"github.com/smallbiznis/payway/internal/outbox"
	"github.com/smallbiznis/payway/internal/ratelimit"
	"github.com/smallbiznis/payway/internal/webhook"
	"github.com/smallbiznis/payway/pkg/db"
	"github.com/smallbiznis/payway/pkg/log"
	"go.uber.org/fx"
)

// The worker deployment runs only the background pollers; the API is served
// elsewhere. The redis lease in the outbox processor keeps multiple workers
// from draining the same events.
func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,

		obsmetrics.Module,
		ratelimit.Module,
		merchant.Module,
		outbox.Module,
		webhook.Module,

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
