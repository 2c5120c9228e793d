package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/doubles-rating/internal/service"
)

type MVPHandler struct {
	mvp *service.MVPService
	now func() time.Time
}

func NewMVPHandler(mvp *service.MVPService) *MVPHandler {
	return &MVPHandler{mvp: mvp, now: time.Now}
}

// GetEveningMVP scores one calendar day (UTC). date defaults to today.
func (h *MVPHandler) GetEveningMVP(c *gin.Context) {
	date := h.now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid date %q, want YYYY-MM-DD", raw)})
			return
		}
		date = parsed
	}
	c.JSON(http.StatusOK, h.mvp.Evening(date))
}

// GetMonthMVP scores the 30 days ending at at. at defaults to now.
func (h *MVPHandler) GetMonthMVP(c *gin.Context) {
	at := h.now().UTC()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid time %q, want RFC3339", raw)})
			return
		}
		at = parsed
	}
	c.JSON(http.StatusOK, h.mvp.Month(at))
}
