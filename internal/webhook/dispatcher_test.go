package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/payway/internal/merchant"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *gorm.DB, *snowflake.Node) {
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

	d := &Dispatcher{
		db:           db,
		log:          zap.NewNop(),
		repo:         ProvideRepository(),
		merchantSvc:  merchant.Provide(),
		client:       &http.Client{Timeout: time.Second},
		maxRetries:   5,
		pollInterval: time.Second,
	}
	return d, db, node
}

func insertMerchant(t *testing.T, db *gorm.DB, id, url, secret string) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO merchants (merchant_id, name, api_key, webhook_url, webhook_secret, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, true, ?)`,
		id, "Test Merchant", "pk_test_"+id, url, secret, time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("insert merchant: %v", err)
	}
}

func insertDelivery(t *testing.T, db *gorm.DB, node *snowflake.Node, merchantID, url string, retryCount int) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO webhook_deliveries (id, event_id, event_type, merchant_id, url, payload,
		 status, retry_count, response_code, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, node.Generate(), "PaymentCaptured", merchantID, url,
		[]byte(`{"eventType":"PaymentCaptured"}`), DeliveryStatusPending, retryCount, now, now,
	).Error
	if err != nil {
		t.Fatalf("insert delivery: %v", err)
	}
	return id
}

func deliveryByID(t *testing.T, db *gorm.DB, id snowflake.ID) Delivery {
	t.Helper()
	var d Delivery
	if err := db.Raw(`SELECT * FROM webhook_deliveries WHERE id = ?`, id).Scan(&d).Error; err != nil {
		t.Fatalf("load delivery: %v", err)
	}
	return d
}

func TestSuccessfulDeliveryIsSignedAndMarked(t *testing.T) {
	d, db, node := newTestDispatcher(t)

	var gotSig, gotTS, gotID string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotTS = r.Header.Get("X-Webhook-Timestamp")
		gotID = r.Header.Get("X-Webhook-Id")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	insertMerchant(t, db, "MERCH-001", srv.URL, "whsec_test")
	id := insertDelivery(t, db, node, "MERCH-001", srv.URL, 0)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got := deliveryByID(t, db, id)
	if got.Status != DeliveryStatusDelivered {
		t.Fatalf("expected DELIVERED, got %s", got.Status)
	}
	if got.ResponseCode != http.StatusOK {
		t.Fatalf("expected response code 200, got %d", got.ResponseCode)
	}
	if gotID != id.String() {
		t.Fatalf("expected X-Webhook-Id %s, got %s", id, gotID)
	}

	ts, err := strconv.ParseInt(gotTS, 10, 64)
	if err != nil {
		t.Fatalf("parse timestamp header: %v", err)
	}
	if want := Sign("whsec_test", gotBody, ts); gotSig != want {
		t.Fatalf("signature mismatch: got %s want %s", gotSig, want)
	}
}

func TestFailedDeliveryFollowsBackoffSchedule(t *testing.T) {
	d, db, node := newTestDispatcher(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	insertMerchant(t, db, "MERCH-001", srv.URL, "whsec_test")
	id := insertDelivery(t, db, node, "MERCH-001", srv.URL, 0)

	before := time.Now().UTC()
	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got := deliveryByID(t, db, id)
	if got.Status != DeliveryStatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	if got.RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", got.RetryCount)
	}
	if got.NextRetryAt == nil {
		t.Fatal("expected next_retry_at to be set")
	}
	wait := got.NextRetryAt.Sub(before)
	if wait < 25*time.Second || wait > 35*time.Second {
		t.Fatalf("expected ~30s backoff after first failure, got %s", wait)
	}
	if got.ResponseCode != http.StatusInternalServerError {
		t.Fatalf("expected recorded status 500, got %d", got.ResponseCode)
	}
}

func TestDeliveryExhaustsAfterMaxRetries(t *testing.T) {
	d, db, node := newTestDispatcher(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	insertMerchant(t, db, "MERCH-001", srv.URL, "whsec_test")
	id := insertDelivery(t, db, node, "MERCH-001", srv.URL, 4)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got := deliveryByID(t, db, id)
	if got.Status != DeliveryStatusExhausted {
		t.Fatalf("expected EXHAUSTED, got %s", got.Status)
	}
	if got.NextRetryAt != nil {
		t.Fatal("exhausted deliveries must not be rescheduled")
	}
}

func TestMissingSecretFailsClosed(t *testing.T) {
	d, db, node := newTestDispatcher(t)

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	insertMerchant(t, db, "MERCH-001", srv.URL, "")
	id := insertDelivery(t, db, node, "MERCH-001", srv.URL, 0)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got := deliveryByID(t, db, id)
	if got.Status != DeliveryStatusFailed {
		t.Fatalf("expected FAILED, got %s", got.Status)
	}
	// Nothing was sent; the payload is never signed with a default key.
	if requests != 0 {
		t.Fatalf("expected no outbound request, got %d", requests)
	}
}

func TestRetryDelaySchedule(t *testing.T) {
	want := []time.Duration{0, 30 * time.Second, 2 * time.Minute, 10 * time.Minute, time.Hour, time.Hour}
	for retry, expected := range want {
		if got := NextRetryDelay(retry); got != expected {
			t.Fatalf("NextRetryDelay(%d) = %s, want %s", retry, got, expected)
		}
	}
}

func TestResponseBodyTruncatedAtRecordLimit(t *testing.T) {
	d, db, node := newTestDispatcher(t)

	big := make([]byte, 5000)
	for i := range big {
		big[i] = 'x'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(big)
	}))
	defer srv.Close()

	insertMerchant(t, db, "MERCH-001", srv.URL, "whsec_test")
	id := insertDelivery(t, db, node, "MERCH-001", srv.URL, 0)

	if err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got := deliveryByID(t, db, id)
	if len(got.ResponseBody) != maxBodyRecorded {
		t.Fatalf("expected body truncated to %d, got %d", maxBodyRecorded, len(got.ResponseBody))
	}
}

func TestEnvelopeShape(t *testing.T) {
	payload, err := json.Marshal(Envelope{
		EventID:   "1",
		EventType: "PaymentCaptured",
		Data:      json.RawMessage(`{"merchant_id":"MERCH-001"}`),
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"eventId", "eventType", "data", "timestamp"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing envelope key %q", key)
		}
	}
}
