package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/doubles-rating/internal/service"
)

type HealthHandler struct {
	ledger *service.LedgerService
}

func NewHealthHandler(ledger *service.LedgerService) *HealthHandler {
	return &HealthHandler{ledger: ledger}
}

// HealthCheck godoc
// @Summary Health check
// @Description Check if the API server is running
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{} "Server is healthy"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "doubles-rating",
		"matches": h.ledger.Head(),
	})
}
