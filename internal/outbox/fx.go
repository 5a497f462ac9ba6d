package outbox

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("outbox",
	fx.Provide(ProvideRepository),
	fx.Provide(NewProcessor),
)

// StartPoller runs the processor loop for the lifetime of the app. Deployments
// that only serve HTTP skip this invoke.
func StartPoller(lc fx.Lifecycle, p *Processor) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go p.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
