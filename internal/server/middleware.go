package server

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	contextMerchantIDKey = "merchant_id"
	contextRequestIDKey  = "request_id"

	headerAPIKey         = "X-API-Key"
	headerIdempotencyKey = "Idempotency-Key"
	headerRequestID      = "X-Request-Id"
)

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextRequestIDKey, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func RequestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http.access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("request_id", c.GetString(contextRequestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// APIKeyRequired resolves the calling merchant from the X-API-Key header.
// Merchant identity comes only from the merchants table.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(headerAPIKey))
		if key == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		m, err := s.merchantSvc.FindByAPIKey(c.Request.Context(), s.db, key)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if m == nil || subtle.ConstantTimeCompare([]byte(m.APIKey), []byte(key)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextMerchantIDKey, m.MerchantID)
		c.Next()
	}
}

func (s *Server) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		if _, ok := s.limiter.Allow(c.Request.Context(), c.GetString(contextMerchantIDKey)); !ok {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func merchantID(c *gin.Context) string {
	return c.GetString(contextMerchantIDKey)
}

func idempotencyKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
}
