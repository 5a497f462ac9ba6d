package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) create3DSSession(c *gin.Context) {
	id, err := parsePaymentID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// Ownership check before touching the session table.
	if _, err := s.paymentSvc.Get(c.Request.Context(), merchantID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	session, err := s.threedsSvc.CreateSession(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (s *Server) verify3DS(c *gin.Context) {
	id, err := parsePaymentID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.paymentSvc.Get(c.Request.Context(), merchantID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		OTP string `json:"otp" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("otp", "required", "otp is required"))
		return
	}

	session, err := s.threedsSvc.Verify(c.Request.Context(), id, req.OTP)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}
