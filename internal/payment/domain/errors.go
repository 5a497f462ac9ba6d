package domain

import (
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

var (
	// ErrPaymentNotFound covers both a missing payment and a payment owned by
	// another merchant; callers cannot distinguish the two.
	ErrPaymentNotFound = errors.New("payment_not_found")

	ErrIdempotencyConflict = errors.New("idempotency_conflict")
	ErrInvalidState        = errors.New("invalid_payment_state")
	ErrProvider            = errors.New("provider_error")

	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrRefundExceedsBalance = errors.New("refund_exceeds_balance")
)

// InvalidStateError reports an operation attempted from a status outside its
// precondition. Non-retryable.
type InvalidStateError struct {
	PaymentID snowflake.ID
	Current   PaymentStatus
	Expected  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("payment %s is %s, expected %s", e.PaymentID, e.Current, e.Expected)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// ProviderError is raised after the attempt row for the failed call has been
// durably recorded.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %s (%s)", e.Provider, e.Message, e.Code)
}

func (e *ProviderError) Unwrap() error { return ErrProvider }
