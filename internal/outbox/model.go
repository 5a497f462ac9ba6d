package outbox

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EventStatus string

const (
	EventStatusNew    EventStatus = "NEW"
	EventStatusSent   EventStatus = "SENT"
	EventStatusFailed EventStatus = "FAILED"
)

// Event is a transactional outbox row. It is written in the same database
// transaction as the state change it describes and drained by the processor.
type Event struct {
	ID          snowflake.ID   `json:"id" gorm:"primaryKey"`
	EventType   string         `json:"event_type" gorm:"type:text;not null;index"`
	AggregateID string         `json:"aggregate_id" gorm:"type:text;not null"`
	Payload     datatypes.JSON `json:"payload" gorm:"not null"`
	Status      EventStatus    `json:"status" gorm:"type:text;not null;index"`
	RetryCount  int            `json:"retry_count" gorm:"not null;default:0"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null"`
	ProcessedAt *time.Time     `json:"processed_at"`
}

func (Event) TableName() string { return "outbox_events" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ev *Event) error
	FetchPending(ctx context.Context, db *gorm.DB, maxRetries, limit int) ([]Event, error)
	MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, retryCount int, failed bool) error
	List(ctx context.Context, db *gorm.DB, status EventStatus, limit int) ([]Event, error)
}

type repo struct{}

func ProvideRepository() Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ev *Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, event_type, aggregate_id, payload, status, retry_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.EventType,
		ev.AggregateID,
		ev.Payload,
		ev.Status,
		ev.RetryCount,
		ev.CreatedAt,
	).Error
}

func (r *repo) FetchPending(ctx context.Context, db *gorm.DB, maxRetries, limit int) ([]Event, error) {
	var events []Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, event_type, aggregate_id, payload, status, retry_count, created_at, processed_at
		 FROM outbox_events
		 WHERE status = ? AND retry_count < ?
		 ORDER BY created_at asc, id asc
		 LIMIT ?`,
		EventStatusNew,
		maxRetries,
		limit,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET status = ?, processed_at = ? WHERE id = ?`,
		EventStatusSent,
		at,
		id,
	).Error
}

func (r *repo) MarkRetry(ctx context.Context, db *gorm.DB, id snowflake.ID, retryCount int, failed bool) error {
	status := EventStatusNew
	if failed {
		status = EventStatusFailed
	}
	return db.WithContext(ctx).Exec(
		`UPDATE outbox_events SET retry_count = ?, status = ? WHERE id = ?`,
		retryCount,
		status,
		id,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, status EventStatus, limit int) ([]Event, error) {
	var events []Event
	stmt := db.WithContext(ctx).Model(&Event{})
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	var err = stmt.Order("created_at desc, id desc").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
