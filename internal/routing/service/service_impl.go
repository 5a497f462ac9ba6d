package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/payway/internal/config"
	obsmetrics "github.com/smallbiznis/payway/internal/observability/metrics"
	"github.com/smallbiznis/payway/internal/provider"
	providerdomain "github.com/smallbiznis/payway/internal/provider/domain"
	routingdomain "github.com/smallbiznis/payway/internal/routing/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNoProvidersConfigured means the registry is empty. There is no sensible
// degraded behavior for this, callers should treat it as fatal.
var ErrNoProvidersConfigured = errors.New("no payment providers configured")

const (
	ReasonOnUs     = "on-us bin match"
	ReasonMerchant = "merchant rule"
	ReasonCurrency = "currency rule"
	ReasonDefault  = "no matching rule, default provider"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Config     config.Config
	Registry   *provider.Registry
	Repo       routingdomain.Repository
	Redis      *redis.Client       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log               *zap.Logger
	registry          *provider.Registry
	repo              routingdomain.Repository
	redis             *redis.Client
	obsMetrics        *obsmetrics.Metrics
	defaultCommission decimal.Decimal
	binCacheTTL       time.Duration
}

func NewService(p Params) routingdomain.Service {
	commission, err := decimal.NewFromString(p.Config.DefaultCommissionRate)
	if err != nil {
		commission = decimal.NewFromFloat(1.99)
	}
	return &Service{
		log:               p.Log.Named("routing.service"),
		registry:          p.Registry,
		repo:              p.Repo,
		redis:             p.Redis,
		obsMetrics:        p.ObsMetrics,
		defaultCommission: commission,
		binCacheTTL:       p.Config.BinCacheTTL,
	}
}

// Route selects an adapter for an authorize call. Rules are walked in priority
// order; providers that are not registered or report UNHEALTHY are skipped.
// With no usable rule the first healthy-or-degraded registered adapter wins at
// the default commission, and if every adapter is unhealthy the first
// registered one is force-selected so the attempt is still recorded.
func (s *Service) Route(ctx context.Context, db *gorm.DB, merchantID, currency, cardBin string) (*routingdomain.Decision, error) {
	if s.registry.Len() == 0 {
		return nil, ErrNoProvidersConfigured
	}

	binInfo := s.lookupBin(ctx, db, cardBin)

	rules, err := s.repo.FindMatchingRules(ctx, db, merchantID, currency, cardBin)
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		adapter, err := s.registry.Get(rule.Provider)
		if err != nil {
			s.log.Warn("routing rule references unknown provider",
				zap.Int64("rule_id", int64(rule.ID)),
				zap.String("provider", rule.Provider))
			continue
		}
		if adapter.HealthCheck(ctx) == providerdomain.HealthUnhealthy {
			continue
		}
		decision := &routingdomain.Decision{
			Adapter:        adapter,
			Provider:       adapter.Name(),
			CommissionRate: rule.CommissionRate,
			Reason:         ruleReason(rule),
			Bin:            binInfo,
		}
		s.record(decision)
		return decision, nil
	}

	for _, adapter := range s.registry.All() {
		if adapter.HealthCheck(ctx) == providerdomain.HealthUnhealthy {
			continue
		}
		decision := &routingdomain.Decision{
			Adapter:        adapter,
			Provider:       adapter.Name(),
			CommissionRate: s.defaultCommission,
			Reason:         ReasonDefault,
			Bin:            binInfo,
		}
		s.record(decision)
		return decision, nil
	}

	// Everything unhealthy. Force-select so the payment attempt still happens
	// and its outcome is recorded.
	forced := s.registry.All()[0]
	s.log.Warn("all providers unhealthy, force-selecting first registered",
		zap.String("provider", forced.Name()))
	decision := &routingdomain.Decision{
		Adapter:        forced,
		Provider:       forced.Name(),
		CommissionRate: s.defaultCommission,
		Reason:         ReasonDefault,
		Bin:            binInfo,
	}
	s.record(decision)
	return decision, nil
}

func ruleReason(rule routingdomain.RoutingRule) string {
	switch {
	case rule.BinPrefix != "":
		return ReasonOnUs
	case rule.MerchantID != "*":
		return ReasonMerchant
	case rule.Currency != "*":
		return ReasonCurrency
	default:
		return ReasonDefault
	}
}

func (s *Service) record(d *routingdomain.Decision) {
	if s.obsMetrics != nil {
		s.obsMetrics.RoutingDecisions.WithLabelValues(d.Provider, d.Reason).Inc()
	}
}

// lookupBin is best-effort; lookup failures never block routing.
func (s *Service) lookupBin(ctx context.Context, db *gorm.DB, bin string) *routingdomain.BinInfo {
	if bin == "" {
		return nil
	}

	if cached := s.binFromCache(ctx, bin); cached != nil {
		return cached
	}

	info, err := s.repo.FindBin(ctx, db, bin)
	if err != nil {
		s.log.Warn("bin lookup failed", zap.String("bin", bin), zap.Error(err))
		return nil
	}
	if info != nil {
		s.binToCache(ctx, info)
	}
	return info
}

func (s *Service) binFromCache(ctx context.Context, bin string) *routingdomain.BinInfo {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, binCacheKey(bin)).Bytes()
	if err != nil {
		return nil
	}
	var info routingdomain.BinInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil
	}
	return &info
}

func (s *Service) binToCache(ctx context.Context, info *routingdomain.BinInfo) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, binCacheKey(info.Bin), raw, s.binCacheTTL).Err(); err != nil {
		s.log.Debug("bin cache write failed", zap.Error(err))
	}
}

func binCacheKey(bin string) string { return "payway:bin:" + bin }
