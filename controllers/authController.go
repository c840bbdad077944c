package controllers

import (
	"MediSlot/handlers"
	"MediSlot/middlewares"
	"MediSlot/models"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	Handler  *handlers.AuthHandler
	Verifier middlewares.TokenVerifier
}

// NewAuthController creates a new AuthController with the given AuthHandler
func NewAuthController(authHandler *handlers.AuthHandler, verifier middlewares.TokenVerifier) *AuthController {
	return &AuthController{
		Handler:  authHandler,
		Verifier: verifier,
	}
}

// RegisterRoutes initializes all authentication routes under router.
func (ac *AuthController) RegisterRoutes(router gin.IRouter) {
	// Public routes: No authentication required
	router.POST("/register", ac.Handler.Register)
	router.POST("/login", ac.Handler.Login)
	router.POST("/send-otp", ac.Handler.SendOTP)
	router.POST("/reset-password", ac.Handler.ResetPassword)

	// Doctor routes: Requires a valid token and the "Doctor" role
	doctorGroup := router.Group("/register").Use(
		middlewares.TokenAuthMiddleware(ac.Verifier),
		middlewares.RoleAuthMiddleware(models.RoleDoctor),
	)
	{
		doctorGroup.POST("/doctor", ac.Handler.RegisterDoctor)
	}
}
