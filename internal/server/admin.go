package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/payway/internal/outbox"
	"github.com/smallbiznis/payway/internal/provider/mock"
	"github.com/smallbiznis/payway/internal/webhook"
	"go.uber.org/zap"
)

func (s *Server) getMockMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": s.mockAdapter.Mode()})
}

func (s *Server) setMockMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("mode", "required", "mode is required"))
		return
	}

	mode, ok := mock.ParseMode(req.Mode)
	if !ok {
		AbortWithError(c, newValidationError("mode", "invalid", "mode must be SUCCESS, FAIL, TIMEOUT, RANDOM or REQUIRES_3DS"))
		return
	}

	s.mockAdapter.SetMode(mode)
	s.log.Info("mock provider mode changed", zap.String("mode", string(mode)))
	c.JSON(http.StatusOK, gin.H{"mode": mode})
}

func (s *Server) listOutboxEvents(c *gin.Context) {
	status := outbox.EventStatus(c.Query("status"))
	events, err := s.outboxRepo.List(c.Request.Context(), s.db, status, listLimit(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) listWebhookDeliveries(c *gin.Context) {
	status := webhook.DeliveryStatus(c.Query("status"))
	deliveries, err := s.webhookRepo.List(c.Request.Context(), s.db, status, listLimit(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

type providerSummary struct {
	Provider     string  `json:"provider"`
	Operation    string  `json:"operation"`
	Attempts     int64   `json:"attempts"`
	Succeeded    int64   `json:"succeeded"`
	Failed       int64   `json:"failed"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

func (s *Server) metricsSummary(c *gin.Context) {
	var rows []providerSummary
	err := s.db.WithContext(c.Request.Context()).Raw(
		`SELECT provider,
		        operation,
		        COUNT(1) AS attempts,
		        SUM(CASE WHEN status = 'SUCCESS' THEN 1 ELSE 0 END) AS succeeded,
		        SUM(CASE WHEN status IN ('FAILURE', 'TIMEOUT') THEN 1 ELSE 0 END) AS failed,
		        AVG(latency_ms) AS avg_latency_ms
		 FROM payment_attempts
		 GROUP BY provider, operation
		 ORDER BY provider, operation`,
	).Scan(&rows).Error
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var volume []struct {
		Type   string `json:"type"`
		Count  int64  `json:"count"`
		Amount string `json:"amount"`
	}
	err = s.db.WithContext(c.Request.Context()).Raw(
		`SELECT type, COUNT(1) AS count, COALESCE(SUM(amount), 0) AS amount
		 FROM transactions GROUP BY type ORDER BY type`,
	).Scan(&volume).Error
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"providers": rows,
		"volume":    volume,
	})
}

func listLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		return 50
	}
	return limit
}
