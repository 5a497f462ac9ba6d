package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Service orchestrates the payment lifecycle. Every mutating call is scoped to
// a merchant and may carry an idempotency key; replays return the stored
// response verbatim without re-executing side effects.
type Service interface {
	Create(ctx context.Context, req CreatePaymentRequest) (*PaymentResponse, error)
	Authorize(ctx context.Context, req AuthorizePaymentRequest) (*PaymentResponse, error)
	Capture(ctx context.Context, req CapturePaymentRequest) (*PaymentResponse, error)
	Refund(ctx context.Context, req RefundPaymentRequest) (*PaymentResponse, error)
	Get(ctx context.Context, merchantID string, paymentID snowflake.ID) (*PaymentResponse, error)
	ListAttempts(ctx context.Context, merchantID string, paymentID snowflake.ID) ([]AttemptResponse, error)
}

type CreatePaymentRequest struct {
	MerchantID     string          `json:"-"`
	IdempotencyKey string          `json:"-"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Currency       string          `json:"currency" binding:"required,len=3"`
	OrderID        string          `json:"order_id"`
	CustomerEmail  string          `json:"customer_email"`
	Description    string          `json:"description"`
}

type AuthorizePaymentRequest struct {
	MerchantID     string       `json:"-"`
	IdempotencyKey string       `json:"-"`
	PaymentID      snowflake.ID `json:"-"`
	CardToken      string       `json:"card_token" binding:"required"`
	CardBin        string       `json:"card_bin"`
	CardLastFour   string       `json:"card_last_four"`
}

type CapturePaymentRequest struct {
	MerchantID     string       `json:"-"`
	IdempotencyKey string       `json:"-"`
	PaymentID      snowflake.ID `json:"-"`

	// Amount is optional; nil captures the full authorized amount.
	Amount *decimal.Decimal `json:"amount"`
}

type RefundPaymentRequest struct {
	MerchantID     string          `json:"-"`
	IdempotencyKey string          `json:"-"`
	PaymentID      snowflake.ID    `json:"-"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Reason         string          `json:"reason"`
}

type PaymentResponse struct {
	ID                snowflake.ID    `json:"id"`
	MerchantID        string          `json:"merchant_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	OrderID           string          `json:"order_id,omitempty"`
	CustomerEmail     string          `json:"customer_email,omitempty"`
	Description       string          `json:"description,omitempty"`
	Status            PaymentStatus   `json:"status"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	Requires3DS       bool            `json:"requires_3ds"`
	RedirectURL       string          `json:"redirect_url,omitempty"`
	RefundedAmount    decimal.Decimal `json:"refunded_amount"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type AttemptResponse struct {
	ID                snowflake.ID  `json:"id"`
	Provider          string        `json:"provider"`
	Operation         OperationType `json:"operation"`
	Status            AttemptStatus `json:"status"`
	ProviderReference string        `json:"provider_reference,omitempty"`
	ErrorCode         string        `json:"error_code,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	LatencyMS         int64         `json:"latency_ms"`
	CreatedAt         time.Time     `json:"created_at"`
}
