package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/payway/internal/config"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	"github.com/smallbiznis/payway/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	fetchBatchSize = 100

	pollLeaseKey = "payway:outbox:poller"
)

// HandlerFunc consumes one outbox event. An error from any handler leaves the
// event NEW for an immediate retry on the next cycle; retry budget is bounded
// by the configured cap, after which the event is parked as FAILED.
type HandlerFunc func(ctx context.Context, ev Event) error

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	Repo       Repository
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Processor struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       Repository
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics

	maxRetries   int
	pollInterval time.Duration

	handlers map[string][]HandlerFunc
	order    []string
}

func NewProcessor(p Params) *Processor {
	return &Processor{
		db:           p.DB,
		log:          p.Log.Named("outbox.processor"),
		repo:         p.Repo,
		locker:       p.Locker,
		obsMetrics:   p.ObsMetrics,
		maxRetries:   p.Config.OutboxMaxRetries,
		pollInterval: p.Config.OutboxPollInterval,
		handlers:     make(map[string][]HandlerFunc),
	}
}

// Register appends a handler for an event type. Registration order is
// preserved per type; handlers registered for the same type all run.
func (p *Processor) Register(eventType string, fn HandlerFunc) {
	if _, ok := p.handlers[eventType]; !ok {
		p.order = append(p.order, eventType)
	}
	p.handlers[eventType] = append(p.handlers[eventType], fn)
}

// RunOnce drains one batch of NEW events in creation order.
func (p *Processor) RunOnce(ctx context.Context) error {
	events, err := p.repo.FetchPending(ctx, p.db, p.maxRetries, fetchBatchSize)
	if err != nil {
		return err
	}

	var errs error
	for _, ev := range events {
		if err := p.process(ctx, ev); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (p *Processor) process(ctx context.Context, ev Event) error {
	handlers := p.handlers[ev.EventType]

	var handlerErr error
	for _, fn := range handlers {
		if err := fn(ctx, ev); err != nil {
			handlerErr = errors.Join(handlerErr, err)
		}
	}

	if handlerErr == nil {
		p.count("sent")
		return p.repo.MarkSent(ctx, p.db, ev.ID, time.Now().UTC())
	}

	retries := ev.RetryCount + 1
	failed := retries >= p.maxRetries
	if failed {
		p.count("failed")
		p.log.Error("outbox event exhausted retries",
			zap.Int64("event_id", int64(ev.ID)),
			zap.String("event_type", ev.EventType),
			zap.Error(handlerErr))
	} else {
		p.count("retried")
		p.log.Warn("outbox event handler failed",
			zap.Int64("event_id", int64(ev.ID)),
			zap.String("event_type", ev.EventType),
			zap.Int("retry_count", retries),
			zap.Error(handlerErr))
	}
	if err := p.repo.MarkRetry(ctx, p.db, ev.ID, retries, failed); err != nil {
		return err
	}
	return handlerErr
}

// RunForever polls at the configured interval. When a redis locker is wired,
// a short lease makes sure only one instance drains the table at a time.
func (p *Processor) RunForever(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		p.runLeased(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Processor) runLeased(ctx context.Context) {
	if p.locker != nil {
		token, ok, err := p.locker.TryLock(ctx, pollLeaseKey, p.pollInterval)
		if err != nil {
			p.log.Warn("outbox lease acquire failed", zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := p.locker.Release(ctx, pollLeaseKey, token); err != nil {
				p.log.Debug("outbox lease release failed", zap.Error(err))
			}
		}()
	}

	if err := p.RunOnce(ctx); err != nil {
		p.log.Warn("outbox cycle finished with errors", zap.Error(err))
	}
}

func (p *Processor) count(result string) {
	if p.obsMetrics != nil {
		p.obsMetrics.OutboxEvents.WithLabelValues(result).Inc()
	}
}
