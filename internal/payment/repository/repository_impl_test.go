package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/payway/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) (*gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&paymentdomain.Payment{},
		&paymentdomain.PaymentAttempt{},
		&paymentdomain.Transaction{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return db, node
}

func TestPaymentRoundTripScopedByMerchant(t *testing.T) {
	db, node := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	now := time.Now().UTC()
	payment := &paymentdomain.Payment{
		ID:         node.Generate(),
		MerchantID: "MERCH-001",
		Amount:     decimal.RequireFromString("49.90"),
		Currency:   "USD",
		Status:     paymentdomain.PaymentStatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repo.CreatePayment(ctx, db, payment))

	got, err := repo.FindPayment(ctx, db, "MERCH-001", payment.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(payment.Amount))
	assert.Equal(t, paymentdomain.PaymentStatusCreated, got.Status)

	// Another merchant sees nothing.
	foreign, err := repo.FindPayment(ctx, db, "MERCH-002", payment.ID)
	require.NoError(t, err)
	assert.Nil(t, foreign)

	payment.Status = paymentdomain.PaymentStatusAuthorized
	payment.ProviderReference = "MOCK-AUTH-1"
	payment.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.UpdatePayment(ctx, db, payment))

	got, err = repo.FindPayment(ctx, db, "MERCH-001", payment.ID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusAuthorized, got.Status)
	assert.Equal(t, "MOCK-AUTH-1", got.ProviderReference)
}

func TestLastSuccessfulAuthorizeProviderPicksNewest(t *testing.T) {
	db, node := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	paymentID := node.Generate()
	base := time.Now().UTC().Add(-time.Minute)

	attempts := []paymentdomain.PaymentAttempt{
		{Provider: "alpha", Operation: paymentdomain.OperationAuthorize, Status: paymentdomain.AttemptStatusFailure},
		{Provider: "beta", Operation: paymentdomain.OperationAuthorize, Status: paymentdomain.AttemptStatusSuccess},
		{Provider: "gamma", Operation: paymentdomain.OperationCapture, Status: paymentdomain.AttemptStatusSuccess},
		{Provider: "delta", Operation: paymentdomain.OperationAuthorize, Status: paymentdomain.AttemptStatusRequires3DS},
	}
	for i := range attempts {
		attempts[i].ID = node.Generate()
		attempts[i].PaymentID = paymentID
		attempts[i].CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.CreateAttempt(ctx, db, &attempts[i]))
	}

	provider, err := repo.LastSuccessfulAuthorizeProvider(ctx, db, paymentID)
	require.NoError(t, err)
	// The capture and pending-challenge attempts are ignored; beta is the
	// newest successful authorize.
	assert.Equal(t, "beta", provider)

	// No usable history.
	provider, err = repo.LastSuccessfulAuthorizeProvider(ctx, db, node.Generate())
	require.NoError(t, err)
	assert.Empty(t, provider)
}

func TestSumRefundsOnlyCountsRefundRows(t *testing.T) {
	db, node := newTestDB(t)
	repo := Provide()
	ctx := context.Background()

	paymentID := node.Generate()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateTransaction(ctx, db, &paymentdomain.Transaction{
		ID: node.Generate(), PaymentID: paymentID,
		Type: paymentdomain.OperationCapture, Amount: decimal.RequireFromString("100.00"),
		Status: "COMPLETED", CreatedAt: now,
	}))
	require.NoError(t, repo.CreateTransaction(ctx, db, &paymentdomain.Transaction{
		ID: node.Generate(), PaymentID: paymentID,
		Type: paymentdomain.OperationRefund, Amount: decimal.RequireFromString("30.00"),
		Status: "COMPLETED", CreatedAt: now,
	}))
	require.NoError(t, repo.CreateTransaction(ctx, db, &paymentdomain.Transaction{
		ID: node.Generate(), PaymentID: paymentID,
		Type: paymentdomain.OperationRefund, Amount: decimal.RequireFromString("12.50"),
		Status: "COMPLETED", CreatedAt: now,
	}))

	sum, err := repo.SumRefunds(ctx, db, paymentID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.RequireFromString("42.50")), "got %s", sum)

	// A payment with no refunds sums to zero, not NULL.
	sum, err = repo.SumRefunds(ctx, db, node.Generate())
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}
