package threeds

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Session{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	return &Service{db: db, log: zap.NewNop(), genID: node}, db
}

func TestCreateSessionIsIdempotentWhilePending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	paymentID := snowflake.ID(42)

	first, err := svc.CreateSession(ctx, paymentID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Status != SessionStatusPending {
		t.Fatalf("expected PENDING, got %s", first.Status)
	}

	second, err := svc.CreateSession(ctx, paymentID)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("expected the live session to be returned, not a new one")
	}
}

func TestVerifyWithCorrectOTP(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	paymentID := snowflake.ID(42)

	if _, err := svc.CreateSession(ctx, paymentID); err != nil {
		t.Fatalf("create: %v", err)
	}

	session, err := svc.Verify(ctx, paymentID, "111111")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if session.Status != SessionStatusVerified {
		t.Fatalf("expected VERIFIED, got %s", session.Status)
	}

	ok, err := svc.IsVerified(ctx, paymentID)
	if err != nil {
		t.Fatalf("is verified: %v", err)
	}
	if !ok {
		t.Fatal("expected payment to be verified")
	}

	// Verifying again stays terminal.
	again, err := svc.Verify(ctx, paymentID, "111111")
	if err != nil {
		t.Fatalf("repeat verify: %v", err)
	}
	if again.Status != SessionStatusVerified {
		t.Fatalf("expected VERIFIED, got %s", again.Status)
	}
}

func TestThreeWrongAttemptsBlockSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	paymentID := snowflake.ID(42)

	if _, err := svc.CreateSession(ctx, paymentID); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Verify(ctx, paymentID, "000000"); err != ErrInvalidOTP {
			t.Fatalf("attempt %d: expected ErrInvalidOTP, got %v", i+1, err)
		}
	}

	session, err := svc.Verify(ctx, paymentID, "000000")
	if err != ErrSessionBlocked {
		t.Fatalf("expected ErrSessionBlocked, got %v", err)
	}
	if session.Status != SessionStatusBlocked {
		t.Fatalf("expected BLOCKED, got %s", session.Status)
	}

	// The right code no longer helps.
	if _, err := svc.Verify(ctx, paymentID, "111111"); err != ErrSessionBlocked {
		t.Fatalf("expected ErrSessionBlocked, got %v", err)
	}
}

func TestExpiredSessionRejectsVerification(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	paymentID := snowflake.ID(42)

	session, err := svc.CreateSession(ctx, paymentID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	expired := time.Now().UTC().Add(-time.Minute)
	if err := db.Exec(`UPDATE threeds_sessions SET expires_at = ? WHERE id = ?`, expired, session.ID).Error; err != nil {
		t.Fatalf("age session: %v", err)
	}

	if _, err := svc.Verify(ctx, paymentID, "111111"); err != ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	// A new session replaces the expired one.
	fresh, err := svc.CreateSession(ctx, paymentID)
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if fresh.ID == session.ID {
		t.Fatal("expected a fresh session after expiry")
	}
	if fresh.Status != SessionStatusPending {
		t.Fatalf("expected PENDING, got %s", fresh.Status)
	}
}

func TestVerifyWithoutSession(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Verify(context.Background(), snowflake.ID(7), "111111"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
