package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/harvestbox/commerce/internal/payment/domain"
)

func (s *Server) RegisterPaymentMethod(c *gin.Context) {
	var req paymentdomain.RegisterMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	method, err := s.paymentSvc.RegisterMethod(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": method})
}

func (s *Server) ListPaymentMethods(c *gin.Context) {
	accountID := strings.TrimSpace(c.Query("account_id"))
	if _, err := snowflake.ParseString(accountID); err != nil {
		AbortWithError(c, newValidationError("account_id", "invalid_account", "invalid account_id"))
		return
	}

	methods, err := s.paymentSvc.ListMethods(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": methods})
}

func (s *Server) DeactivatePaymentMethod(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, err := snowflake.ParseString(id); err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	if err := s.paymentSvc.DeactivateMethod(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deactivated": true}})
}
