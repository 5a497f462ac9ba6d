package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/payway/internal/payment/domain"
)

func parsePaymentID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		return 0, paymentdomain.ErrPaymentNotFound
	}
	return id, nil
}

func (s *Server) createPayment(c *gin.Context) {
	var req paymentdomain.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}
	req.MerchantID = merchantID(c)
	req.IdempotencyKey = idempotencyKey(c)

	resp, err := s.paymentSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) authorizePayment(c *gin.Context) {
	id, err := parsePaymentID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req paymentdomain.AuthorizePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("card_token", "required", "card_token is required"))
		return
	}
	req.MerchantID = merchantID(c)
	req.IdempotencyKey = idempotencyKey(c)
	req.PaymentID = id

	resp, err := s.paymentSvc.Authorize(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) capturePayment(c *gin.Context) {
	id, err := parsePaymentID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req paymentdomain.CapturePaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
			return
		}
	}
	req.MerchantID = merchantID(c)
	req.IdempotencyKey = idempotencyKey(c)
	req.PaymentID = id

	resp, err := s.paymentSvc.Capture(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) refundPayment(c *gin.Context) {
	id, err := parsePaymentID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req paymentdomain.RefundPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("amount", "required", "amount is required"))
		return
	}
	req.MerchantID = merchantID(c)
	req.IdempotencyKey = idempotencyKey(c)
	req.PaymentID = id

	resp, err := s.paymentSvc.Refund(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getPayment(c *gin.Context) {
	id, err := parsePaymentID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.Get(c.Request.Context(), merchantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listAttempts(c *gin.Context) {
	id, err := parsePaymentID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	attempts, err := s.paymentSvc.ListAttempts(c.Request.Context(), merchantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}
