package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/middleware"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/internal/services"
	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

// writeError maps service errors to HTTP status codes. Internal causes are
// logged, not returned.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrAlreadyStarted),
		errors.Is(err, services.ErrTerminal),
		errors.Is(err, services.ErrNotReady),
		errors.Is(err, services.ErrNotRetryable):
		status = http.StatusConflict
	case errors.Is(err, services.ErrQueueFull), errors.Is(err, services.ErrStopped):
		status = http.StatusServiceUnavailable
	case domain.IsKind(err, domain.KindInput):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		middleware.Logger(c).Error("request failed", "route", c.FullPath(), "err", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// queryInt reads a non-negative integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "invalid '"+name+"'")
		return 0, false
	}
	return n, true
}
