package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payway/internal/config"
	"github.com/smallbiznis/payway/internal/idempotency"
	"github.com/smallbiznis/payway/internal/merchant"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	"github.com/smallbiznis/payway/internal/outbox"
	"github.com/smallbiznis/payway/internal/payment"
	paymentdomain "github.com/smallbiznis/payway/internal/payment/domain"
	"github.com/smallbiznis/payway/internal/provider"
	"github.com/smallbiznis/payway/internal/provider/mock"
	"github.com/smallbiznis/payway/internal/ratelimit"
	"github.com/smallbiznis/payway/internal/routing"
	"github.com/smallbiznis/payway/internal/threeds"
	"github.com/smallbiznis/payway/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	obsmetrics.Module,
	ratelimit.Module,
	provider.Module,
	merchant.Module,
	idempotency.Module,
	routing.Module,
	payment.Module,
	outbox.Module,
	webhook.Module,
	threeds.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogMiddleware(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	paymentSvc  paymentdomain.Service
	threedsSvc  *threeds.Service
	merchantSvc merchant.Repository
	mockAdapter *mock.Adapter
	outboxRepo  outbox.Repository
	webhookRepo webhook.Repository
	limiter     *ratelimit.RequestLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	PaymentSvc  paymentdomain.Service
	ThreedsSvc  *threeds.Service
	MerchantSvc merchant.Repository
	MockAdapter *mock.Adapter
	OutboxRepo  outbox.Repository
	WebhookRepo webhook.Repository
	Limiter     *ratelimit.RequestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		log:         p.Log.Named("http.server"),
		genID:       p.GenID,
		paymentSvc:  p.PaymentSvc,
		threedsSvc:  p.ThreedsSvc,
		merchantSvc: p.MerchantSvc,
		mockAdapter: p.MockAdapter,
		outboxRepo:  p.OutboxRepo,
		webhookRepo: p.WebhookRepo,
		limiter:     p.Limiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(s.APIKeyRequired())
	v1.Use(s.RateLimit())
	{
		v1.POST("/payments", s.createPayment)
		v1.GET("/payments/:id", s.getPayment)
		v1.GET("/payments/:id/attempts", s.listAttempts)
		v1.POST("/payments/:id/authorize", s.authorizePayment)
		v1.POST("/payments/:id/capture", s.capturePayment)
		v1.POST("/payments/:id/refund", s.refundPayment)

		v1.POST("/payments/:id/3ds/session", s.create3DSSession)
		v1.POST("/payments/:id/3ds/verify", s.verify3DS)
	}

	admin := s.engine.Group("/admin")
	{
		admin.GET("/mock-mode", s.getMockMode)
		admin.POST("/mock-mode", s.setMockMode)
		admin.GET("/outbox", s.listOutboxEvents)
		admin.GET("/webhooks", s.listWebhookDeliveries)
		admin.GET("/metrics/summary", s.metricsSummary)
	}
}
