package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) ListShippingRates(c *gin.Context) {
	rates, err := s.catalogRepo.ListShippingRates(c.Request.Context(), s.db)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rates})
}
