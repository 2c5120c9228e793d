package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/doubles-rating/internal/repository"
	"github.com/rl-arena/doubles-rating/internal/service"
	"github.com/rl-arena/doubles-rating/pkg/logger"
)

// respondError maps service errors to HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case service.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrMatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrMatchIDTaken), errors.Is(err, repository.ErrAppendConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
