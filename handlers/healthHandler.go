package handlers

import (
	"MediSlot/middlewares"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
	ServerTime(ctx context.Context) (time.Time, error)
}

type HealthHandler struct {
	checker HealthChecker
	timeout time.Duration
}

func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker, timeout: 3 * time.Second}
}

// Health reports database reachability and the database clock.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.checker.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		middlewares.RespondJSON(c, gin.H{"status": "unavailable"}, http.StatusServiceUnavailable)
		return
	}
	now, err := h.checker.ServerTime(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Health check failed")
		middlewares.RespondJSON(c, gin.H{"status": "unavailable"}, http.StatusServiceUnavailable)
		return
	}
	middlewares.RespondJSON(c, gin.H{"status": "ok", "server_time": now.UTC().Format(time.RFC3339)}, http.StatusOK)
}
