package webhook

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusFailed    DeliveryStatus = "FAILED"
	DeliveryStatusExhausted DeliveryStatus = "EXHAUSTED"
)

// Delivery is one webhook to one merchant endpoint. The payload is frozen at
// creation; retries re-send the same bytes with a fresh signature.
type Delivery struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventID        snowflake.ID   `json:"event_id" gorm:"not null;index"`
	EventType      string         `json:"event_type" gorm:"type:text;not null"`
	MerchantID     string         `json:"merchant_id" gorm:"type:text;not null"`
	URL            string         `json:"url" gorm:"type:text;not null"`
	Payload        datatypes.JSON `json:"payload" gorm:"not null"`
	Status         DeliveryStatus `json:"status" gorm:"type:text;not null;index"`
	RetryCount     int            `json:"retry_count" gorm:"not null;default:0"`
	NextRetryAt    *time.Time     `json:"next_retry_at"`
	ResponseCode   int            `json:"response_code"`
	ResponseBody   string         `json:"response_body" gorm:"type:text"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"not null"`
}

func (Delivery) TableName() string { return "webhook_deliveries" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, d *Delivery) error
	FetchDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Delivery, error)
	Update(ctx context.Context, db *gorm.DB, d *Delivery) error
	List(ctx context.Context, db *gorm.DB, status DeliveryStatus, limit int) ([]Delivery, error)
}

type repo struct{}

func ProvideRepository() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, d *Delivery) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO webhook_deliveries (id, event_id, event_type, merchant_id, url, payload,
		 status, retry_count, next_retry_at, response_code, response_body, last_attempt_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID,
		d.EventID,
		d.EventType,
		d.MerchantID,
		d.URL,
		d.Payload,
		d.Status,
		d.RetryCount,
		d.NextRetryAt,
		d.ResponseCode,
		d.ResponseBody,
		d.LastAttemptAt,
		d.CreatedAt,
		d.UpdatedAt,
	).Error
}

func (r *repo) FetchDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Delivery, error) {
	var deliveries []Delivery
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_id, event_type, merchant_id, url, payload, status, retry_count,
		 next_retry_at, response_code, response_body, last_attempt_at, created_at, updated_at
		 FROM webhook_deliveries
		 WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
		 ORDER BY created_at asc, id asc
		 LIMIT ?`,
		DeliveryStatusPending,
		DeliveryStatusFailed,
		now,
		limit,
	).Scan(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, d *Delivery) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_deliveries SET status = ?, retry_count = ?, next_retry_at = ?,
		 response_code = ?, response_body = ?, last_attempt_at = ?, updated_at = ?
		 WHERE id = ?`,
		d.Status,
		d.RetryCount,
		d.NextRetryAt,
		d.ResponseCode,
		d.ResponseBody,
		d.LastAttemptAt,
		d.UpdatedAt,
		d.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, status DeliveryStatus, limit int) ([]Delivery, error) {
	var deliveries []Delivery
	stmt := db.WithContext(ctx).Model(&Delivery{})
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	err := stmt.Order("created_at desc, id desc").Limit(limit).Find(&deliveries).Error
	if err != nil {
		return nil, err
	}
	return deliveries, nil
}
