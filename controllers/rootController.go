package controllers

import (
	"MediSlot/handlers"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// rootHandler handles requests to the root path
func rootHandler(c *gin.Context) {
	c.Status(http.StatusOK)
	if _, err := c.Writer.Write([]byte("MediSlot booking API")); err != nil {
		log.Error().Err(err).Msg("Error writing response")
	}
}

// SetupRootRoute registers the unauthenticated operational routes.
func SetupRootRoute(router *gin.Engine, healthHandler *handlers.HealthHandler, gatherer prometheus.Gatherer) {
	router.GET("/", rootHandler)
	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
