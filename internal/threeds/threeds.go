package threeds

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "PENDING"
	SessionStatusVerified SessionStatus = "VERIFIED"
	SessionStatusExpired  SessionStatus = "EXPIRED"
	SessionStatusBlocked  SessionStatus = "BLOCKED"
)

const (
	// testOTP is accepted in every environment; real issuer integration would
	// replace this with a challenge round-trip.
	testOTP = "111111"

	maxAttempts = 3
	sessionTTL  = 5 * time.Minute
)

var (
	ErrSessionNotFound = errors.New("3ds_session_not_found")
	ErrSessionExpired  = errors.New("3ds_session_expired")
	ErrSessionBlocked  = errors.New("3ds_session_blocked")
	ErrInvalidOTP      = errors.New("3ds_invalid_otp")
)

// Session is one OTP challenge for one payment. Terminal statuses are
// VERIFIED, EXPIRED and BLOCKED.
type Session struct {
	ID        snowflake.ID  `json:"id" gorm:"primaryKey"`
	PaymentID snowflake.ID  `json:"payment_id" gorm:"not null;index"`
	Status    SessionStatus `json:"status" gorm:"type:text;not null"`
	Attempts  int           `json:"attempts" gorm:"not null;default:0"`
	ExpiresAt time.Time     `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"not null"`
}

func (Session) TableName() string { return "threeds_sessions" }

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("threeds.service"),
		genID: p.GenID,
	}
}

var Module = fx.Module("threeds.service",
	fx.Provide(NewService),
)

// CreateSession returns the live PENDING session for a payment, or creates a
// fresh one when none exists or the previous one expired.
func (s *Service) CreateSession(ctx context.Context, paymentID snowflake.ID) (*Session, error) {
	now := time.Now().UTC()

	existing, err := s.findLatest(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == SessionStatusPending {
		if now.Before(existing.ExpiresAt) {
			return existing, nil
		}
		if err := s.markStatus(ctx, existing, SessionStatusExpired, now); err != nil {
			return nil, err
		}
	}

	session := &Session{
		ID:        s.genID.Generate(),
		PaymentID: paymentID,
		Status:    SessionStatusPending,
		ExpiresAt: now.Add(sessionTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.db.WithContext(ctx).Exec(
		`INSERT INTO threeds_sessions (id, payment_id, status, attempts, expires_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.PaymentID,
		session.Status,
		session.Attempts,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	).Error
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Verify checks the OTP against the live session. Three wrong codes block the
// session for good.
func (s *Service) Verify(ctx context.Context, paymentID snowflake.ID, otp string) (*Session, error) {
	now := time.Now().UTC()

	session, err := s.findLatest(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	switch session.Status {
	case SessionStatusVerified:
		return session, nil
	case SessionStatusBlocked:
		return session, ErrSessionBlocked
	case SessionStatusExpired:
		return session, ErrSessionExpired
	}

	if now.After(session.ExpiresAt) {
		if err := s.markStatus(ctx, session, SessionStatusExpired, now); err != nil {
			return nil, err
		}
		return session, ErrSessionExpired
	}

	if otp != testOTP {
		session.Attempts++
		status := SessionStatusPending
		if session.Attempts >= maxAttempts {
			status = SessionStatusBlocked
		}
		if err := s.update(ctx, session, status, now); err != nil {
			return nil, err
		}
		if status == SessionStatusBlocked {
			return session, ErrSessionBlocked
		}
		return session, ErrInvalidOTP
	}

	session.Attempts++
	if err := s.update(ctx, session, SessionStatusVerified, now); err != nil {
		return nil, err
	}
	return session, nil
}

// IsVerified reports whether any session for the payment reached VERIFIED.
func (s *Service) IsVerified(ctx context.Context, paymentID snowflake.ID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM threeds_sessions WHERE payment_id = ? AND status = ?`,
		paymentID,
		SessionStatusVerified,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) findLatest(ctx context.Context, paymentID snowflake.ID) (*Session, error) {
	var session Session
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, payment_id, status, attempts, expires_at, created_at, updated_at
		 FROM threeds_sessions WHERE payment_id = ?
		 ORDER BY created_at desc, id desc LIMIT 1`,
		paymentID,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (s *Service) markStatus(ctx context.Context, session *Session, status SessionStatus, now time.Time) error {
	session.Status = status
	session.UpdatedAt = now
	return s.db.WithContext(ctx).Exec(
		`UPDATE threeds_sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		now,
		session.ID,
	).Error
}

func (s *Service) update(ctx context.Context, session *Session, status SessionStatus, now time.Time) error {
	session.Status = status
	session.UpdatedAt = now
	return s.db.WithContext(ctx).Exec(
		`UPDATE threeds_sessions SET status = ?, attempts = ?, updated_at = ? WHERE id = ?`,
		status,
		session.Attempts,
		now,
		session.ID,
	).Error
}
