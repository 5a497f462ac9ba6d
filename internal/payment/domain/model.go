package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusCreated           PaymentStatus = "CREATED"
	PaymentStatusAuthorized        PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured          PaymentStatus = "CAPTURED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"

	// PaymentStatusCancelled is part of the status vocabulary but no operation
	// transitions into it; a void path would have to be specified separately.
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

type OperationType string

const (
	OperationAuthorize OperationType = "AUTHORIZE"
	OperationCapture   OperationType = "CAPTURE"
	OperationRefund    OperationType = "REFUND"
)

type AttemptStatus string

const (
	AttemptStatusSuccess     AttemptStatus = "SUCCESS"
	AttemptStatusFailure     AttemptStatus = "FAILURE"
	AttemptStatusTimeout     AttemptStatus = "TIMEOUT"
	AttemptStatusRequires3DS AttemptStatus = "REQUIRES_3DS"
)

const (
	EventTypePaymentCreated    = "PaymentCreated"
	EventTypePaymentAuthorized = "PaymentAuthorized"
	EventTypePaymentCaptured   = "PaymentCaptured"
	EventTypePaymentRefunded   = "PaymentRefunded"
	EventTypePaymentFailed     = "PaymentFailed"
)

// Payment is the aggregate root of the authorize/capture/refund lifecycle.
// It is owned by the orchestrator and mutated only through defined transitions.
type Payment struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	MerchantID        string          `json:"merchant_id" gorm:"type:text;not null;index"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency          string          `json:"currency" gorm:"type:varchar(3);not null"`
	OrderID           string          `json:"order_id" gorm:"type:text"`
	CustomerEmail     string          `json:"customer_email" gorm:"type:text"`
	Description       string          `json:"description" gorm:"type:text"`
	Status            PaymentStatus   `json:"status" gorm:"type:text;not null"`
	ProviderReference string          `json:"provider_reference" gorm:"type:text"`
	CardBin           string          `json:"card_bin" gorm:"type:varchar(6)"`
	CardLastFour      string          `json:"card_last_four" gorm:"type:varchar(4)"`
	Requires3DS       bool            `json:"requires_3ds" gorm:"column:requires_3ds;not null;default:false"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// PaymentAttempt records one provider call. Rows are append-only; the newest
// successful AUTHORIZE row recovers which provider handled a payment.
type PaymentAttempt struct {
	ID                snowflake.ID  `json:"id" gorm:"primaryKey"`
	PaymentID         snowflake.ID  `json:"payment_id" gorm:"not null;index"`
	Provider          string        `json:"provider" gorm:"type:text;not null"`
	Operation         OperationType `json:"operation" gorm:"type:text;not null"`
	Status            AttemptStatus `json:"status" gorm:"type:text;not null"`
	ProviderReference string        `json:"provider_reference" gorm:"type:text"`
	ErrorCode         string        `json:"error_code" gorm:"type:text"`
	ErrorMessage      string        `json:"error_message" gorm:"type:text"`
	LatencyMS         int64         `json:"latency_ms" gorm:"not null"`
	CreatedAt         time.Time     `json:"created_at" gorm:"not null"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }

// Transaction is the ledger entry for a completed CAPTURE or REFUND.
// Append-only; the accumulated REFUND sum decides full vs partial refund.
type Transaction struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	PaymentID         snowflake.ID    `json:"payment_id" gorm:"not null;index"`
	Type              OperationType   `json:"type" gorm:"type:text;not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Status            string          `json:"status" gorm:"type:text;not null"`
	ProviderReference string          `json:"provider_reference" gorm:"type:text"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }
