package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/doubles-rating/internal/service"
)

type PlayerHandler struct {
	ledger *service.LedgerService
}

func NewPlayerHandler(ledger *service.LedgerService) *PlayerHandler {
	return &PlayerHandler{ledger: ledger}
}

// GetPlayer returns the player's current rating. Players without matches get
// the baseline.
func (h *PlayerHandler) GetPlayer(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	c.JSON(http.StatusOK, h.ledger.PlayerSummary(id, false))
}

// GetPlayerHistory 플레이어 레이팅 히스토리 조회
func (h *PlayerHandler) GetPlayerHistory(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	summary := h.ledger.PlayerSummary(id, true)
	c.JSON(http.StatusOK, gin.H{
		"playerId": summary.PlayerID,
		"rating":   summary.Rating,
		"history":  summary.History,
	})
}
