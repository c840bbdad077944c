package routes

import (
	"MediSlot/config"
	"MediSlot/controllers"
	"MediSlot/handlers"
	"MediSlot/middlewares"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Config    *config.AppConfig
	Auth      handlers.Authenticator
	Booking   handlers.Booker
	Lifecycle handlers.AppointmentLifecycle
	Identity  handlers.Identity
	Doctors   handlers.DoctorSearcher
	Tokens    middlewares.TokenVerifier
	Health    handlers.HealthChecker
	Gatherer  prometheus.Gatherer
}

// SetupRoutes initializes the routes and middleware for the server
func SetupRoutes(deps Dependencies) http.Handler {
	if deps.Config.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(middlewares.CorsMiddleware(middlewares.DefaultCorsConfig(deps.Config.CORSOrigins)))

	router.Use(middlewares.NewRateLimiterMiddleware(middlewares.RateLimiterConfig{
		RequestsPerSecond: deps.Config.RateLimitRPS,
		Burst:             deps.Config.RateLimitBurst,
	}))

	router.Use(middlewares.LoggingMiddleware())

	authHandler := handlers.NewAuthHandler(deps.Auth)
	appointmentHandler := handlers.NewAppointmentHandler(deps.Booking, deps.Lifecycle, deps.Identity)
	doctorHandler := handlers.NewDoctorHandler(deps.Doctors)
	healthHandler := handlers.NewHealthHandler(deps.Health)

	api := router.Group("/api")

	authController := controllers.NewAuthController(authHandler, deps.Tokens)
	authController.RegisterRoutes(api)

	controllers.SetupAppointmentRoutes(api, deps.Tokens, appointmentHandler, doctorHandler)

	controllers.SetupRootRoute(router, healthHandler, deps.Gatherer)

	return router
}
