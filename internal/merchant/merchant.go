package merchant

import (
	"context"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("merchant",
	fx.Provide(Provide),
)

// Merchant is the configuration record for one API consumer. The api_key
// authenticates HTTP calls; webhook_url and webhook_secret drive delivery.
type Merchant struct {
	MerchantID    string    `json:"merchant_id" gorm:"primaryKey;type:text"`
	Name          string    `json:"name" gorm:"type:text;not null"`
	APIKey        string    `json:"-" gorm:"column:api_key;type:text;not null;uniqueIndex"`
	WebhookURL    string    `json:"webhook_url" gorm:"type:text"`
	WebhookSecret string    `json:"-" gorm:"type:text"`
	IsActive      bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null"`
}

func (Merchant) TableName() string { return "merchants" }

type Repository interface {
	FindByMerchantID(ctx context.Context, db *gorm.DB, merchantID string) (*Merchant, error)
	FindByAPIKey(ctx context.Context, db *gorm.DB, apiKey string) (*Merchant, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

func (r *repo) FindByMerchantID(ctx context.Context, db *gorm.DB, merchantID string) (*Merchant, error) {
	var m Merchant
	err := db.WithContext(ctx).Raw(
		`SELECT merchant_id, name, api_key, webhook_url, webhook_secret, is_active, created_at
		 FROM merchants WHERE merchant_id = ?`,
		merchantID,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.MerchantID == "" {
		return nil, nil
	}
	return &m, nil
}

func (r *repo) FindByAPIKey(ctx context.Context, db *gorm.DB, apiKey string) (*Merchant, error) {
	var m Merchant
	err := db.WithContext(ctx).Raw(
		`SELECT merchant_id, name, api_key, webhook_url, webhook_secret, is_active, created_at
		 FROM merchants WHERE api_key = ? AND is_active = true`,
		apiKey,
	).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	if m.MerchantID == "" {
		return nil, nil
	}
	return &m, nil
}
