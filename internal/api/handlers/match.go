package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/doubles-rating/internal/models"
	"github.com/rl-arena/doubles-rating/internal/service"
)

type MatchHandler struct {
	ledger *service.LedgerService
}

func NewMatchHandler(ledger *service.LedgerService) *MatchHandler {
	return &MatchHandler{ledger: ledger}
}

// SubmitMatch godoc
// @Summary Record a match
// @Description Validate a match result, rate it and append it to the history
// @Tags matches
// @Accept json
// @Produce json
// @Param match body models.MatchSubmission true "Match result"
// @Success 201 {object} models.MatchRecord
// @Failure 400 {object} map[string]string "Invalid match"
// @Failure 409 {object} map[string]string "Match id already recorded"
// @Router /matches [post]
func (h *MatchHandler) SubmitMatch(c *gin.Context) {
	var req models.MatchSubmission
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.ledger.Submit(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, rec)
}

// ListMatches 매치 목록 조회 (최신순)
func (h *MatchHandler) ListMatches(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	matches, total := h.ledger.Recent(page, pageSize)
	c.JSON(http.StatusOK, gin.H{
		"matches": matches,
		"total":   total,
	})
}

// GetMatch 특정 매치 조회
func (h *MatchHandler) GetMatch(c *gin.Context) {
	rec, err := h.ledger.MatchByID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Simulate rates a hypothetical match without recording it.
func (h *MatchHandler) Simulate(c *gin.Context) {
	var req models.SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.ledger.Simulate(req.Match, req.Players)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
