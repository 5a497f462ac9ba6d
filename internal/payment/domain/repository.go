package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Repository persists payments, attempts and ledger transactions. Methods take
// the gorm handle explicitly so a caller transaction flows through.
type Repository interface {
	CreatePayment(ctx context.Context, db *gorm.DB, p *Payment) error
	FindPayment(ctx context.Context, db *gorm.DB, merchantID string, id snowflake.ID) (*Payment, error)
	UpdatePayment(ctx context.Context, db *gorm.DB, p *Payment) error

	CreateAttempt(ctx context.Context, db *gorm.DB, a *PaymentAttempt) error
	ListAttempts(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]PaymentAttempt, error)

	// LastSuccessfulAuthorizeProvider returns the provider of the newest
	// AUTHORIZE attempt that did not fail, or "" when none exists.
	LastSuccessfulAuthorizeProvider(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (string, error)

	CreateTransaction(ctx context.Context, db *gorm.DB, t *Transaction) error
	SumRefunds(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (decimal.Decimal, error)
}
