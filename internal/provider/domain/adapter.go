package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type ResultStatus string

const (
	ResultSuccess     ResultStatus = "SUCCESS"
	ResultFailure     ResultStatus = "FAILURE"
	ResultTimeout     ResultStatus = "TIMEOUT"
	ResultRequires3DS ResultStatus = "REQUIRES_3DS"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "HEALTHY"
	HealthDegraded  HealthStatus = "DEGRADED"
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

// Adapter is the port every payment provider implements. Calls must respect
// the ctx deadline and report outcomes through Result rather than errors, so
// the orchestrator can persist an attempt row for every outcome.
type Adapter interface {
	Name() string
	Authorize(ctx context.Context, req AuthorizeRequest) Result
	Capture(ctx context.Context, req CaptureRequest) Result
	Refund(ctx context.Context, req RefundRequest) Result
	HealthCheck(ctx context.Context) HealthStatus
}

type AuthorizeRequest struct {
	PaymentID  string
	MerchantID string
	Amount     decimal.Decimal
	Currency   string
	CardToken  string
	CardBin    string
}

type CaptureRequest struct {
	PaymentID         string
	ProviderReference string
	Amount            decimal.Decimal
	Currency          string
}

type RefundRequest struct {
	PaymentID         string
	ProviderReference string
	Amount            decimal.Decimal
	Currency          string
	Reason            string
}

type Result struct {
	Status            ResultStatus
	ProviderReference string
	ErrorCode         string
	ErrorMessage      string
	RedirectURL       string
}

func (r Result) Requires3DS() bool { return r.Status == ResultRequires3DS }

func Success(ref string) Result {
	return Result{Status: ResultSuccess, ProviderReference: ref}
}

func Failure(code, message string) Result {
	return Result{Status: ResultFailure, ErrorCode: code, ErrorMessage: message}
}

func Timeout() Result {
	return Result{Status: ResultTimeout, ErrorCode: "TIMEOUT", ErrorMessage: "provider did not respond in time"}
}

func Needs3DS(ref, redirectURL string) Result {
	return Result{Status: ResultRequires3DS, ProviderReference: ref, RedirectURL: redirectURL}
}
