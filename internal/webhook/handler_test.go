package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payway/internal/merchant"
	"github.com/smallbiznis/payway/internal/outbox"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestHandler(t *testing.T) (*Handler, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Delivery{}, &merchant.Merchant{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	h := &Handler{
		db:          db,
		log:         zap.NewNop(),
		genID:       node,
		repo:        ProvideRepository(),
		merchantSvc: merchant.Provide(),
	}
	return h, db, node
}

func TestHandleCreatesPendingDelivery(t *testing.T) {
	h, db, node := newTestHandler(t)
	insertMerchant(t, db, "MERCH-001", "https://merchant.example/webhooks", "whsec_test")

	ev := outbox.Event{
		ID:        node.Generate(),
		EventType: "PaymentAuthorized",
		Payload:   []byte(`{"merchant_id":"MERCH-001","payment_id":"42"}`),
	}
	if err := h.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	deliveries, err := h.repo.List(context.Background(), db, DeliveryStatusPending, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	got := deliveries[0]
	if got.URL != "https://merchant.example/webhooks" {
		t.Fatalf("unexpected url %q", got.URL)
	}
	if got.EventID != ev.ID {
		t.Fatalf("delivery not linked to event: %s vs %s", got.EventID, ev.ID)
	}
	if got.NextRetryAt != nil {
		t.Fatal("fresh deliveries are due immediately")
	}
}

func TestHandleWithoutWebhookURLIsNoOp(t *testing.T) {
	h, db, node := newTestHandler(t)
	insertMerchant(t, db, "MERCH-002", "", "")

	ev := outbox.Event{
		ID:        node.Generate(),
		EventType: "PaymentCaptured",
		Payload:   []byte(`{"merchant_id":"MERCH-002"}`),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	deliveries, err := h.repo.List(context.Background(), db, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(deliveries) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(deliveries))
	}
}

func TestHandleUnknownMerchantIsNoOp(t *testing.T) {
	h, db, node := newTestHandler(t)

	ev := outbox.Event{
		ID:        node.Generate(),
		EventType: "PaymentCaptured",
		Payload:   []byte(`{"merchant_id":"GHOST"}`),
	}
	if err := h.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	deliveries, err := h.repo.List(context.Background(), db, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(deliveries) != 0 {
		t.Fatalf("expected no deliveries, got %d", len(deliveries))
	}
}
