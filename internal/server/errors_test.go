package server

import (
	"errors"
	"net/http"
	"testing"

	paymentdomain "github.com/smallbiznis/payway/internal/payment/domain"
	routingservice "github.com/smallbiznis/payway/internal/routing/service"
)

func TestMapErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"not found", paymentdomain.ErrPaymentNotFound, http.StatusNotFound, "not_found"},
		{"invalid state", &paymentdomain.InvalidStateError{Current: paymentdomain.PaymentStatusCreated, Expected: "AUTHORIZED"}, http.StatusConflict, "invalid_state"},
		{"idempotency conflict", paymentdomain.ErrIdempotencyConflict, http.StatusUnprocessableEntity, "idempotency_conflict"},
		{"provider error", &paymentdomain.ProviderError{Provider: "mock", Code: "card_declined"}, http.StatusBadGateway, "provider_error"},
		{"validation", paymentdomain.ErrRefundExceedsBalance, http.StatusBadRequest, "validation_error"},
		{"validation errors struct", newValidationError("amount", "required", "amount is required"), http.StatusBadRequest, "validation_error"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"rate limited", ErrTooManyRequests, http.StatusTooManyRequests, "too_many_requests"},
		{"no providers", routingservice.ErrNoProvidersConfigured, http.StatusServiceUnavailable, "service_unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			if status != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, status)
			}
			if payload.Type != tc.typ {
				t.Fatalf("expected type %q, got %q", tc.typ, payload.Type)
			}
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	_, payload := mapError(errors.New("pq: connection refused at 10.0.0.3"))
	if payload.Message != "internal server error" {
		t.Fatalf("internal detail leaked: %q", payload.Message)
	}
}
