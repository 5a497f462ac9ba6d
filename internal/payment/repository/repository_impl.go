package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payway/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreatePayment(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (id, merchant_id, amount, currency, order_id, customer_email, description,
		 status, provider_reference, card_bin, card_last_four, requires_3ds, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.MerchantID,
		p.Amount,
		p.Currency,
		p.OrderID,
		p.CustomerEmail,
		p.Description,
		p.Status,
		p.ProviderReference,
		p.CardBin,
		p.CardLastFour,
		p.Requires3DS,
		p.CreatedAt,
		p.UpdatedAt,
	).Error
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, merchantID string, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, amount, currency, order_id, customer_email, description,
		 status, provider_reference, card_bin, card_last_four, requires_3ds, created_at, updated_at
		 FROM payments WHERE merchant_id = ? AND id = ?`,
		merchantID,
		id,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) UpdatePayment(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments SET status = ?, provider_reference = ?, card_bin = ?, card_last_four = ?,
		 requires_3ds = ?, updated_at = ? WHERE id = ?`,
		p.Status,
		p.ProviderReference,
		p.CardBin,
		p.CardLastFour,
		p.Requires3DS,
		p.UpdatedAt,
		p.ID,
	).Error
}

func (r *repo) CreateAttempt(ctx context.Context, db *gorm.DB, a *domain.PaymentAttempt) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_attempts (id, payment_id, provider, operation, status,
		 provider_reference, error_code, error_message, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.PaymentID,
		a.Provider,
		a.Operation,
		a.Status,
		a.ProviderReference,
		a.ErrorCode,
		a.ErrorMessage,
		a.LatencyMS,
		a.CreatedAt,
	).Error
}

func (r *repo) ListAttempts(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]domain.PaymentAttempt, error) {
	var attempts []domain.PaymentAttempt
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, provider, operation, status, provider_reference,
		 error_code, error_message, latency_ms, created_at
		 FROM payment_attempts WHERE payment_id = ?
		 ORDER BY created_at desc, id desc`,
		paymentID,
	).Scan(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}

func (r *repo) LastSuccessfulAuthorizeProvider(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (string, error) {
	var provider string
	err := db.WithContext(ctx).Raw(
		`SELECT provider FROM payment_attempts
		 WHERE payment_id = ? AND operation = ? AND status = ?
		 ORDER BY created_at desc, id desc LIMIT 1`,
		paymentID,
		domain.OperationAuthorize,
		domain.AttemptStatusSuccess,
	).Scan(&provider).Error
	if err != nil {
		return "", err
	}
	return provider, nil
}

func (r *repo) CreateTransaction(ctx context.Context, db *gorm.DB, t *domain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transactions (id, payment_id, type, amount, status, provider_reference, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.PaymentID,
		t.Type,
		t.Amount,
		t.Status,
		t.ProviderReference,
		t.CreatedAt,
	).Error
}

func (r *repo) SumRefunds(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	err := db.WithContext(ctx).Raw(
		`SELECT SUM(amount) FROM transactions WHERE payment_id = ? AND type = ?`,
		paymentID,
		domain.OperationRefund,
	).Scan(&sum).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
