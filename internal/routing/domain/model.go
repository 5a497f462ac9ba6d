package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	providerdomain "github.com/smallbiznis/payway/internal/provider/domain"
	"gorm.io/gorm"
)

// RoutingRule selects a provider for an authorize call. A "*" in merchant_id
// or currency matches anything; an empty bin_prefix matches any card.
type RoutingRule struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	MerchantID     string          `json:"merchant_id" gorm:"type:text;not null"`
	Currency       string          `json:"currency" gorm:"type:varchar(3);not null"`
	BinPrefix      string          `json:"bin_prefix" gorm:"type:varchar(6)"`
	Provider       string          `json:"provider" gorm:"type:text;not null"`
	CommissionRate decimal.Decimal `json:"commission_rate" gorm:"type:numeric(5,2);not null"`
	Priority       int             `json:"priority" gorm:"not null;default:0"`
	IsActive       bool            `json:"is_active" gorm:"not null;default:true"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
}

func (RoutingRule) TableName() string { return "routing_rules" }

// BinInfo describes the issuing bank of a card BIN.
type BinInfo struct {
	Bin      string `json:"bin" gorm:"primaryKey;type:varchar(6)"`
	Bank     string `json:"bank" gorm:"type:text"`
	Scheme   string `json:"scheme" gorm:"type:text"`
	CardType string `json:"card_type" gorm:"type:text"`
	Country  string `json:"country" gorm:"type:varchar(2)"`
}

func (BinInfo) TableName() string { return "bin_database" }

// Decision is the routing outcome handed to the orchestrator.
type Decision struct {
	Adapter        providerdomain.Adapter
	Provider       string
	CommissionRate decimal.Decimal
	Reason         string
	Bin            *BinInfo
}

type Repository interface {
	FindMatchingRules(ctx context.Context, db *gorm.DB, merchantID, currency, bin string) ([]RoutingRule, error)
	FindBin(ctx context.Context, db *gorm.DB, bin string) (*BinInfo, error)
}

type Service interface {
	Route(ctx context.Context, db *gorm.DB, merchantID, currency, cardBin string) (*Decision, error)
}
