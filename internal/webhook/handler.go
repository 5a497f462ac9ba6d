package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payway/internal/merchant"
	"github.com/smallbiznis/payway/internal/outbox"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Envelope is the body POSTed to the merchant endpoint.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type HandlerParams struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        Repository
	MerchantSvc merchant.Repository
}

// Handler turns outbox payment events into pending webhook deliveries.
type Handler struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        Repository
	merchantSvc merchant.Repository
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		db:          p.DB,
		log:         p.Log.Named("webhook.handler"),
		genID:       p.GenID,
		repo:        p.Repo,
		merchantSvc: p.MerchantSvc,
	}
}

// Handle creates a PENDING delivery for the event's merchant. A merchant
// without a webhook URL is a silent no-op, not an error.
func (h *Handler) Handle(ctx context.Context, ev outbox.Event) error {
	var data struct {
		MerchantID string `json:"merchant_id"`
	}
	if err := json.Unmarshal(ev.Payload, &data); err != nil {
		h.log.Warn("outbox payload missing merchant id",
			zap.Int64("event_id", int64(ev.ID)),
			zap.Error(err))
		return nil
	}

	m, err := h.merchantSvc.FindByMerchantID(ctx, h.db, data.MerchantID)
	if err != nil {
		return err
	}
	if m == nil || m.WebhookURL == "" {
		return nil
	}

	now := time.Now().UTC()
	envelope := Envelope{
		EventID:   ev.ID.String(),
		EventType: ev.EventType,
		Data:      json.RawMessage(ev.Payload),
		Timestamp: now,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	return h.repo.Insert(ctx, h.db, &Delivery{
		ID:         h.genID.Generate(),
		EventID:    ev.ID,
		EventType:  ev.EventType,
		MerchantID: m.MerchantID,
		URL:        m.WebhookURL,
		Payload:    payload,
		Status:     DeliveryStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}
