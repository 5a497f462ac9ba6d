package webhook

import (
	"context"

	"github.com/smallbiznis/payway/internal/outbox"
	paymentdomain "github.com/smallbiznis/payway/internal/payment/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(ProvideRepository),
	fx.Provide(NewHandler),
	fx.Provide(NewDispatcher),
	fx.Invoke(RegisterHandlers),
)

// RegisterHandlers subscribes the webhook handler to every payment event.
func RegisterHandlers(p *outbox.Processor, h *Handler) {
	for _, eventType := range []string{
		paymentdomain.EventTypePaymentCreated,
		paymentdomain.EventTypePaymentAuthorized,
		paymentdomain.EventTypePaymentCaptured,
		paymentdomain.EventTypePaymentRefunded,
		paymentdomain.EventTypePaymentFailed,
	} {
		p.Register(eventType, h.Handle)
	}
}

// StartDispatcher runs the delivery loop for the lifetime of the app.
func StartDispatcher(lc fx.Lifecycle, d *Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go d.RunForever(ctx)

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
