package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/merchant"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dispatchBatchSize = 50
	maxBodyRecorded   = 1000
)

// backoffSchedule indexes by retry count; deliveries past the cap never get a
// next_retry_at because they are parked as EXHAUSTED.
var backoffSchedule = []time.Duration{0, 30 * time.Second, 2 * time.Minute, 10 * time.Minute, time.Hour}

type DispatcherParams struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Config      config.Config
	Repo        Repository
	MerchantSvc merchant.Repository
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

// Dispatcher drains due deliveries and POSTs them with an HMAC signature.
type Dispatcher struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        Repository
	merchantSvc merchant.Repository
	obsMetrics  *obsmetrics.Metrics
	client      *http.Client

	maxRetries   int
	pollInterval time.Duration
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		db:           p.DB,
		log:          p.Log.Named("webhook.dispatcher"),
		repo:         p.Repo,
		merchantSvc:  p.MerchantSvc,
		obsMetrics:   p.ObsMetrics,
		client:       &http.Client{Timeout: p.Config.WebhookTimeout},
		maxRetries:   p.Config.WebhookMaxRetries,
		pollInterval: p.Config.WebhookPollInterval,
	}
}

// NextRetryDelay returns the wait before retry attempt n (0-based).
func NextRetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(backoffSchedule) {
		retryCount = len(backoffSchedule) - 1
	}
	return backoffSchedule[retryCount]
}

// Sign returns hex(HMAC-SHA256(payload + "." + timestamp)) keyed by secret.
func Sign(secret string, payload []byte, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	mac.Write([]byte("."))
	fmt.Fprintf(mac, "%d", ts)
	return hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()
	deliveries, err := d.repo.FetchDue(ctx, d.db, now, dispatchBatchSize)
	if err != nil {
		return err
	}

	for _, delivery := range deliveries {
		d.attempt(ctx, delivery)
	}
	return nil
}

func (d *Dispatcher) attempt(ctx context.Context, delivery Delivery) {
	now := time.Now().UTC()
	delivery.LastAttemptAt = &now
	delivery.UpdatedAt = now

	m, err := d.merchantSvc.FindByMerchantID(ctx, d.db, delivery.MerchantID)
	if err != nil {
		d.log.Warn("merchant lookup failed", zap.String("merchant_id", delivery.MerchantID), zap.Error(err))
		return
	}

	// A merchant without a secret fails closed; the payload is never signed
	// with a shared default key.
	if m == nil || m.WebhookSecret == "" {
		d.fail(ctx, &delivery, 0, "webhook secret not configured")
		return
	}

	ts := now.UnixMilli()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		d.fail(ctx, &delivery, 0, err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Id", delivery.ID.String())
	req.Header.Set("X-Webhook-Signature", Sign(m.WebhookSecret, delivery.Payload, ts))
	req.Header.Set("X-Webhook-Timestamp", fmt.Sprintf("%d", ts))

	resp, err := d.client.Do(req)
	if err != nil {
		d.fail(ctx, &delivery, 0, err.Error())
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyRecorded))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivery.Status = DeliveryStatusDelivered
		delivery.ResponseCode = resp.StatusCode
		delivery.ResponseBody = string(body)
		delivery.NextRetryAt = nil
		d.count("delivered")
		if err := d.repo.Update(ctx, d.db, &delivery); err != nil {
			d.log.Warn("delivery update failed", zap.Int64("delivery_id", int64(delivery.ID)), zap.Error(err))
		}
		return
	}

	d.fail(ctx, &delivery, resp.StatusCode, string(body))
}

func (d *Dispatcher) fail(ctx context.Context, delivery *Delivery, code int, body string) {
	delivery.RetryCount++
	delivery.ResponseCode = code
	if len(body) > maxBodyRecorded {
		body = body[:maxBodyRecorded]
	}
	delivery.ResponseBody = body

	if delivery.RetryCount >= d.maxRetries {
		delivery.Status = DeliveryStatusExhausted
		delivery.NextRetryAt = nil
		d.count("exhausted")
		d.log.Error("webhook delivery exhausted",
			zap.Int64("delivery_id", int64(delivery.ID)),
			zap.String("merchant_id", delivery.MerchantID),
			zap.Int("response_code", code))
	} else {
		delivery.Status = DeliveryStatusFailed
		next := time.Now().UTC().Add(NextRetryDelay(delivery.RetryCount))
		delivery.NextRetryAt = &next
		d.count("failed")
	}

	if err := d.repo.Update(ctx, d.db, delivery); err != nil {
		d.log.Warn("delivery update failed", zap.Int64("delivery_id", int64(delivery.ID)), zap.Error(err))
	}
}

func (d *Dispatcher) RunForever(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.RunOnce(ctx); err != nil {
			d.log.Warn("webhook cycle finished with errors", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) count(result string) {
	if d.obsMetrics != nil {
		d.obsMetrics.WebhookDeliveries.WithLabelValues(result).Inc()
	}
}
