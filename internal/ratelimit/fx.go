package ratelimit

import (
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/payway/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewTokenBucket),
	fx.Provide(NewLocker),
	fx.Provide(NewRequestLimiter),
)

// NewRedisClient returns nil when no redis address is configured; everything
// built on top degrades to single-instance behavior.
func NewRedisClient(cfg config.Config) *redis.Client {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
	})
}
