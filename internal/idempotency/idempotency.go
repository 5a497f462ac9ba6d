package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("idempotency",
	fx.Provide(Provide),
)

// Record stores the outcome of the first call made with an idempotency key.
// Replays compare the request hash and return the stored response verbatim.
type Record struct {
	IdempotencyKey string    `json:"idempotency_key" gorm:"primaryKey;type:text"`
	MerchantID     string    `json:"merchant_id" gorm:"type:text;not null"`
	RequestHash    string    `json:"request_hash" gorm:"type:varchar(64);not null"`
	Response       []byte    `json:"response" gorm:"type:bytea"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null"`
}

func (Record) TableName() string { return "idempotency_records" }

// Hash returns the lower-case hex SHA-256 of the canonical request body.
func Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

type Repository interface {
	Find(ctx context.Context, db *gorm.DB, merchantID, key string) (*Record, error)
	Save(ctx context.Context, db *gorm.DB, rec *Record) error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, merchantID, key string) (*Record, error) {
	var rec Record
	err := db.WithContext(ctx).Raw(
		`SELECT idempotency_key, merchant_id, request_hash, response, created_at
		 FROM idempotency_records WHERE idempotency_key = ? AND merchant_id = ?`,
		key,
		merchantID,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.IdempotencyKey == "" {
		return nil, nil
	}
	return &rec, nil
}

// Save is insert-once; a concurrent duplicate is silently ignored so the first
// writer's record wins.
func (r *repo) Save(ctx context.Context, db *gorm.DB, rec *Record) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO idempotency_records (idempotency_key, merchant_id, request_hash, response, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (idempotency_key) DO NOTHING`,
		rec.IdempotencyKey,
		rec.MerchantID,
		rec.RequestHash,
		rec.Response,
		rec.CreatedAt,
	).Error
}
