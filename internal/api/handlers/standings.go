package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/doubles-rating/internal/service"
)

type StandingsHandler struct {
	standings *service.StandingsService
}

func NewStandingsHandler(standings *service.StandingsService) *StandingsHandler {
	return &StandingsHandler{
		standings: standings,
	}
}

// GetStandings godoc
// @Summary Get standings
// @Description Every player ranked by rating, ties broken by player id
// @Tags standings
// @Produce json
// @Success 200 {object} map[string]interface{} "Standings"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /standings [get]
func (h *StandingsHandler) GetStandings(c *gin.Context) {
	rows, err := h.standings.Build(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"standings": rows,
		"total":     len(rows),
	})
}
