package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/idempotency"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	"github.com/smallbiznis/payway/internal/outbox"
	paymentdomain "github.com/smallbiznis/payway/internal/payment/domain"
	"github.com/smallbiznis/payway/internal/provider"
	providerdomain "github.com/smallbiznis/payway/internal/provider/domain"
	routingdomain "github.com/smallbiznis/payway/internal/routing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Config     config.Config
	GenID      *snowflake.Node
	Repo       paymentdomain.Repository
	IdemRepo   idempotency.Repository
	OutboxRepo outbox.Repository
	Registry   *provider.Registry
	RoutingSvc routingdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	idemRepo   idempotency.Repository
	outboxRepo outbox.Repository
	registry   *provider.Registry
	routingSvc routingdomain.Service
	obsMetrics *obsmetrics.Metrics

	callTimeout time.Duration
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		idemRepo:    p.IdemRepo,
		outboxRepo:  p.OutboxRepo,
		registry:    p.Registry,
		routingSvc:  p.RoutingSvc,
		obsMetrics:  p.ObsMetrics,
		callTimeout: p.Config.ProviderCallTimeout,
	}
}

func (s *Service) Create(ctx context.Context, req paymentdomain.CreatePaymentRequest) (*paymentdomain.PaymentResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if len(req.Currency) != 3 {
		return nil, paymentdomain.ErrInvalidCurrency
	}

	var resp *paymentdomain.PaymentResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		replay, done, err := s.checkIdempotency(ctx, tx, req.MerchantID, req.IdempotencyKey, req)
		if err != nil || done {
			resp = replay
			return err
		}

		now := time.Now().UTC()
		payment := &paymentdomain.Payment{
			ID:            s.genID.Generate(),
			MerchantID:    req.MerchantID,
			Amount:        req.Amount,
			Currency:      req.Currency,
			OrderID:       req.OrderID,
			CustomerEmail: maskEmail(req.CustomerEmail),
			Description:   req.Description,
			Status:        paymentdomain.PaymentStatusCreated,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.CreatePayment(ctx, tx, payment); err != nil {
			return err
		}

		if err := s.emitEvent(ctx, tx, paymentdomain.EventTypePaymentCreated, payment); err != nil {
			return err
		}

		resp = s.toResponse(payment, decimal.Zero, "")
		s.countOp("create", "success")
		return s.saveIdempotency(ctx, tx, req.MerchantID, req.IdempotencyKey, req, resp)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) Authorize(ctx context.Context, req paymentdomain.AuthorizePaymentRequest) (*paymentdomain.PaymentResponse, error) {
	var resp *paymentdomain.PaymentResponse
	var provErr error
	err := s.db.Transaction(func(tx *gorm.DB) error {
		replay, done, err := s.checkIdempotency(ctx, tx, req.MerchantID, req.IdempotencyKey, req)
		if err != nil || done {
			resp = replay
			return err
		}

		payment, err := s.loadPayment(ctx, tx, req.MerchantID, req.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status != paymentdomain.PaymentStatusCreated {
			return &paymentdomain.InvalidStateError{
				PaymentID: payment.ID,
				Current:   payment.Status,
				Expected:  string(paymentdomain.PaymentStatusCreated),
			}
		}

		decision, err := s.routingSvc.Route(ctx, tx, payment.MerchantID, payment.Currency, req.CardBin)
		if err != nil {
			return err
		}
		s.log.Info("provider selected",
			zap.Int64("payment_id", int64(payment.ID)),
			zap.String("provider", decision.Provider),
			zap.String("reason", decision.Reason))

		payment.CardBin = req.CardBin
		payment.CardLastFour = req.CardLastFour

		result, latency := s.call(ctx, decision.Adapter, paymentdomain.OperationAuthorize, func(callCtx context.Context) providerdomain.Result {
			return decision.Adapter.Authorize(callCtx, providerdomain.AuthorizeRequest{
				PaymentID:  payment.ID.String(),
				MerchantID: payment.MerchantID,
				Amount:     payment.Amount,
				Currency:   payment.Currency,
				CardToken:  req.CardToken,
				CardBin:    req.CardBin,
			})
		})

		if err := s.recordAttempt(ctx, tx, payment.ID, decision.Provider, paymentdomain.OperationAuthorize, result, latency); err != nil {
			return err
		}

		now := time.Now().UTC()
		switch result.Status {
		case providerdomain.ResultSuccess:
			payment.Status = paymentdomain.PaymentStatusAuthorized
			payment.ProviderReference = result.ProviderReference
			payment.UpdatedAt = now
			if err := s.repo.UpdatePayment(ctx, tx, payment); err != nil {
				return err
			}
			if err := s.emitEvent(ctx, tx, paymentdomain.EventTypePaymentAuthorized, payment); err != nil {
				return err
			}
			resp = s.toResponse(payment, decimal.Zero, "")
			s.countOp("authorize", "success")

		case providerdomain.ResultRequires3DS:
			payment.Requires3DS = true
			payment.ProviderReference = result.ProviderReference
			payment.UpdatedAt = now
			if err := s.repo.UpdatePayment(ctx, tx, payment); err != nil {
				return err
			}
			resp = s.toResponse(payment, decimal.Zero, result.RedirectURL)
			s.countOp("authorize", "requires_3ds")

		default:
			payment.Status = paymentdomain.PaymentStatusFailed
			payment.UpdatedAt = now
			if err := s.repo.UpdatePayment(ctx, tx, payment); err != nil {
				return err
			}
			if err := s.emitEvent(ctx, tx, paymentdomain.EventTypePaymentFailed, payment); err != nil {
				return err
			}
			s.countOp("authorize", "failure")
			// Return nil so the attempt row, FAILED transition and event
			// commit; the provider error surfaces after the transaction.
			provErr = &paymentdomain.ProviderError{
				Provider: decision.Provider,
				Code:     result.ErrorCode,
				Message:  result.ErrorMessage,
			}
			return nil
		}

		return s.saveIdempotency(ctx, tx, req.MerchantID, req.IdempotencyKey, req, resp)
	})
	if err != nil {
		return nil, err
	}
	if provErr != nil {
		return nil, provErr
	}
	return resp, nil
}

func (s *Service) Capture(ctx context.Context, req paymentdomain.CapturePaymentRequest) (*paymentdomain.PaymentResponse, error) {
	if req.Amount != nil && !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}

	var resp *paymentdomain.PaymentResponse
	var provErr error
	err := s.db.Transaction(func(tx *gorm.DB) error {
		replay, done, err := s.checkIdempotency(ctx, tx, req.MerchantID, req.IdempotencyKey, req)
		if err != nil || done {
			resp = replay
			return err
		}

		payment, err := s.loadPayment(ctx, tx, req.MerchantID, req.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status != paymentdomain.PaymentStatusAuthorized {
			return &paymentdomain.InvalidStateError{
				PaymentID: payment.ID,
				Current:   payment.Status,
				Expected:  string(paymentdomain.PaymentStatusAuthorized),
			}
		}

		amount := payment.Amount
		if req.Amount != nil {
			amount = *req.Amount
		}
		if amount.GreaterThan(payment.Amount) {
			return paymentdomain.ErrInvalidAmount
		}

		adapter, providerName, err := s.adapterForFollowUp(ctx, tx, payment.ID)
		if err != nil {
			return err
		}

		result, latency := s.call(ctx, adapter, paymentdomain.OperationCapture, func(callCtx context.Context) providerdomain.Result {
			return adapter.Capture(callCtx, providerdomain.CaptureRequest{
				PaymentID:         payment.ID.String(),
				ProviderReference: payment.ProviderReference,
				Amount:            amount,
				Currency:          payment.Currency,
			})
		})

		if err := s.recordAttempt(ctx, tx, payment.ID, providerName, paymentdomain.OperationCapture, result, latency); err != nil {
			return err
		}

		if result.Status != providerdomain.ResultSuccess {
			s.countOp("capture", "failure")
			// Commit the attempt row before surfacing the failure.
			provErr = &paymentdomain.ProviderError{
				Provider: providerName,
				Code:     result.ErrorCode,
				Message:  result.ErrorMessage,
			}
			return nil
		}

		now := time.Now().UTC()
		if err := s.repo.CreateTransaction(ctx, tx, &paymentdomain.Transaction{
			ID:                s.genID.Generate(),
			PaymentID:         payment.ID,
			Type:              paymentdomain.OperationCapture,
			Amount:            amount,
			Status:            "COMPLETED",
			ProviderReference: result.ProviderReference,
			CreatedAt:         now,
		}); err != nil {
			return err
		}

		payment.Status = paymentdomain.PaymentStatusCaptured
		payment.UpdatedAt = now
		if err := s.repo.UpdatePayment(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.emitEvent(ctx, tx, paymentdomain.EventTypePaymentCaptured, payment); err != nil {
			return err
		}

		resp = s.toResponse(payment, decimal.Zero, "")
		s.countOp("capture", "success")
		return s.saveIdempotency(ctx, tx, req.MerchantID, req.IdempotencyKey, req, resp)
	})
	if err != nil {
		return nil, err
	}
	if provErr != nil {
		return nil, provErr
	}
	return resp, nil
}

func (s *Service) Refund(ctx context.Context, req paymentdomain.RefundPaymentRequest) (*paymentdomain.PaymentResponse, error) {
	if !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}

	var resp *paymentdomain.PaymentResponse
	var provErr error
	err := s.db.Transaction(func(tx *gorm.DB) error {
		replay, done, err := s.checkIdempotency(ctx, tx, req.MerchantID, req.IdempotencyKey, req)
		if err != nil || done {
			resp = replay
			return err
		}

		payment, err := s.loadPayment(ctx, tx, req.MerchantID, req.PaymentID)
		if err != nil {
			return err
		}
		if payment.Status != paymentdomain.PaymentStatusCaptured &&
			payment.Status != paymentdomain.PaymentStatusPartiallyRefunded {
			return &paymentdomain.InvalidStateError{
				PaymentID: payment.ID,
				Current:   payment.Status,
				Expected:  "CAPTURED or PARTIALLY_REFUNDED",
			}
		}

		refunded, err := s.repo.SumRefunds(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		// Hard guard ahead of the provider call; cumulative refunds can never
		// pass the captured amount.
		if refunded.Add(req.Amount).GreaterThan(payment.Amount) {
			return paymentdomain.ErrRefundExceedsBalance
		}

		adapter, providerName, err := s.adapterForFollowUp(ctx, tx, payment.ID)
		if err != nil {
			return err
		}

		result, latency := s.call(ctx, adapter, paymentdomain.OperationRefund, func(callCtx context.Context) providerdomain.Result {
			return adapter.Refund(callCtx, providerdomain.RefundRequest{
				PaymentID:         payment.ID.String(),
				ProviderReference: payment.ProviderReference,
				Amount:            req.Amount,
				Currency:          payment.Currency,
				Reason:            req.Reason,
			})
		})

		if err := s.recordAttempt(ctx, tx, payment.ID, providerName, paymentdomain.OperationRefund, result, latency); err != nil {
			return err
		}

		if result.Status != providerdomain.ResultSuccess {
			s.countOp("refund", "failure")
			provErr = &paymentdomain.ProviderError{
				Provider: providerName,
				Code:     result.ErrorCode,
				Message:  result.ErrorMessage,
			}
			return nil
		}

		now := time.Now().UTC()
		if err := s.repo.CreateTransaction(ctx, tx, &paymentdomain.Transaction{
			ID:                s.genID.Generate(),
			PaymentID:         payment.ID,
			Type:              paymentdomain.OperationRefund,
			Amount:            req.Amount,
			Status:            "COMPLETED",
			ProviderReference: result.ProviderReference,
			CreatedAt:         now,
		}); err != nil {
			return err
		}

		total := refunded.Add(req.Amount)
		if total.GreaterThanOrEqual(payment.Amount) {
			payment.Status = paymentdomain.PaymentStatusRefunded
		} else {
			payment.Status = paymentdomain.PaymentStatusPartiallyRefunded
		}
		payment.UpdatedAt = now
		if err := s.repo.UpdatePayment(ctx, tx, payment); err != nil {
			return err
		}
		if err := s.emitEvent(ctx, tx, paymentdomain.EventTypePaymentRefunded, payment); err != nil {
			return err
		}

		resp = s.toResponse(payment, total, "")
		s.countOp("refund", "success")
		return s.saveIdempotency(ctx, tx, req.MerchantID, req.IdempotencyKey, req, resp)
	})
	if err != nil {
		return nil, err
	}
	if provErr != nil {
		return nil, provErr
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, merchantID string, paymentID snowflake.ID) (*paymentdomain.PaymentResponse, error) {
	payment, err := s.loadPayment(ctx, s.db, merchantID, paymentID)
	if err != nil {
		return nil, err
	}
	refunded, err := s.repo.SumRefunds(ctx, s.db, payment.ID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(payment, refunded, ""), nil
}

func (s *Service) ListAttempts(ctx context.Context, merchantID string, paymentID snowflake.ID) ([]paymentdomain.AttemptResponse, error) {
	if _, err := s.loadPayment(ctx, s.db, merchantID, paymentID); err != nil {
		return nil, err
	}
	attempts, err := s.repo.ListAttempts(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	out := make([]paymentdomain.AttemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, paymentdomain.AttemptResponse{
			ID:                a.ID,
			Provider:          a.Provider,
			Operation:         a.Operation,
			Status:            a.Status,
			ProviderReference: a.ProviderReference,
			ErrorCode:         a.ErrorCode,
			ErrorMessage:      a.ErrorMessage,
			LatencyMS:         a.LatencyMS,
			CreatedAt:         a.CreatedAt,
		})
	}
	return out, nil
}

// checkIdempotency resolves a keyed replay. done=true with a response means
// serve the stored response; an error means the key was reused with a
// different body.
func (s *Service) checkIdempotency(ctx context.Context, tx *gorm.DB, merchantID, key string, req any) (*paymentdomain.PaymentResponse, bool, error) {
	if key == "" {
		return nil, false, nil
	}
	rec, err := s.idemRepo.Find(ctx, tx, merchantID, key)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, false, err
	}
	if idempotency.Hash(body) != rec.RequestHash {
		return nil, false, paymentdomain.ErrIdempotencyConflict
	}

	var resp paymentdomain.PaymentResponse
	if err := json.Unmarshal(rec.Response, &resp); err != nil {
		return nil, false, err
	}
	s.log.Info("idempotent replay", zap.String("idempotency_key", key))
	return &resp, true, nil
}

func (s *Service) saveIdempotency(ctx context.Context, tx *gorm.DB, merchantID, key string, req any, resp *paymentdomain.PaymentResponse) error {
	if key == "" {
		return nil
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	stored, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.idemRepo.Save(ctx, tx, &idempotency.Record{
		IdempotencyKey: key,
		MerchantID:     merchantID,
		RequestHash:    idempotency.Hash(body),
		Response:       stored,
		CreatedAt:      time.Now().UTC(),
	})
}

func (s *Service) loadPayment(ctx context.Context, tx *gorm.DB, merchantID string, id snowflake.ID) (*paymentdomain.Payment, error) {
	payment, err := s.repo.FindPayment(ctx, tx, merchantID, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return payment, nil
}

// adapterForFollowUp recovers the provider that authorized the payment so
// capture and refund land on the same acquirer. With no usable history the
// first registered adapter takes the call.
func (s *Service) adapterForFollowUp(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID) (providerdomain.Adapter, string, error) {
	name, err := s.repo.LastSuccessfulAuthorizeProvider(ctx, tx, paymentID)
	if err != nil {
		return nil, "", err
	}
	if name != "" {
		if adapter, err := s.registry.Get(name); err == nil {
			return adapter, adapter.Name(), nil
		}
		s.log.Warn("authorizing provider no longer registered", zap.String("provider", name))
	}
	all := s.registry.All()
	if len(all) == 0 {
		return nil, "", &provider.ErrProviderNotFound{Name: name}
	}
	return all[0], all[0].Name(), nil
}

func (s *Service) call(ctx context.Context, adapter providerdomain.Adapter, op paymentdomain.OperationType, fn func(context.Context) providerdomain.Result) (providerdomain.Result, time.Duration) {
	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	start := time.Now()
	result := fn(callCtx)
	latency := time.Since(start)

	if s.obsMetrics != nil {
		s.obsMetrics.ProviderLatency.WithLabelValues(adapter.Name(), string(op)).Observe(latency.Seconds())
	}
	return result, latency
}

func (s *Service) recordAttempt(ctx context.Context, tx *gorm.DB, paymentID snowflake.ID, providerName string, op paymentdomain.OperationType, result providerdomain.Result, latency time.Duration) error {
	return s.repo.CreateAttempt(ctx, tx, &paymentdomain.PaymentAttempt{
		ID:                s.genID.Generate(),
		PaymentID:         paymentID,
		Provider:          providerName,
		Operation:         op,
		Status:            attemptStatus(result.Status),
		ProviderReference: result.ProviderReference,
		ErrorCode:         result.ErrorCode,
		ErrorMessage:      result.ErrorMessage,
		LatencyMS:         latency.Milliseconds(),
		CreatedAt:         time.Now().UTC(),
	})
}

func attemptStatus(rs providerdomain.ResultStatus) paymentdomain.AttemptStatus {
	switch rs {
	case providerdomain.ResultSuccess:
		return paymentdomain.AttemptStatusSuccess
	case providerdomain.ResultTimeout:
		return paymentdomain.AttemptStatusTimeout
	case providerdomain.ResultRequires3DS:
		return paymentdomain.AttemptStatusRequires3DS
	default:
		return paymentdomain.AttemptStatusFailure
	}
}

func (s *Service) emitEvent(ctx context.Context, tx *gorm.DB, eventType string, payment *paymentdomain.Payment) error {
	payload, err := json.Marshal(map[string]any{
		"payment_id":  payment.ID.String(),
		"merchant_id": payment.MerchantID,
		"amount":      payment.Amount,
		"currency":    payment.Currency,
		"status":      payment.Status,
		"order_id":    payment.OrderID,
	})
	if err != nil {
		return err
	}
	return s.outboxRepo.Insert(ctx, tx, &outbox.Event{
		ID:          s.genID.Generate(),
		EventType:   eventType,
		AggregateID: payment.ID.String(),
		Payload:     payload,
		Status:      outbox.EventStatusNew,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *Service) toResponse(p *paymentdomain.Payment, refunded decimal.Decimal, redirectURL string) *paymentdomain.PaymentResponse {
	return &paymentdomain.PaymentResponse{
		ID:                p.ID,
		MerchantID:        p.MerchantID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		OrderID:           p.OrderID,
		CustomerEmail:     p.CustomerEmail,
		Description:       p.Description,
		Status:            p.Status,
		ProviderReference: p.ProviderReference,
		Requires3DS:       p.Requires3DS,
		RedirectURL:       redirectURL,
		RefundedAmount:    refunded,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func (s *Service) countOp(operation, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.PaymentOperations.WithLabelValues(operation, outcome).Inc()
	}
}

// maskEmail keeps the first and last character of the local part.
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, host := email[:at], email[at+1:]
	if len(local) <= 2 {
		return local[:1] + "***@" + host
	}
	return local[:1] + "***" + local[len(local)-1:] + "@" + host
}
