package ratelimit

import (
	"context"
	"fmt"

	"github.com/smallbiznis/payway/internal/config"
)

const keyAPIRequest = "payway:ratelimit:merchant:%s"

// RequestLimiter throttles API calls per merchant through a shared redis
// token bucket, so the limit holds across instances.
type RequestLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewRequestLimiter(cfg config.Config, bucket *TokenBucket) *RequestLimiter {
	if !cfg.RateLimitEnabled || bucket == nil {
		return nil
	}
	return &RequestLimiter{
		enabled: true,
		bucket:  bucket,
		rate:    cfg.RateLimitPerSecond,
		burst:   cfg.RateLimitBurst,
	}
}

// Allow returns false only on an explicit limit hit; redis trouble fails open.
func (l *RequestLimiter) Allow(ctx context.Context, merchantID string) (*RateLimitResult, bool) {
	if l == nil || !l.enabled {
		return nil, true
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyAPIRequest, merchantID), l.rate, l.burst)
	if err != nil {
		return nil, true
	}
	return res, res.Allowed
}
