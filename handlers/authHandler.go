package handlers

import (
	"MediSlot/middlewares"
	"MediSlot/models"
	"MediSlot/services"
	"MediSlot/utils"
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Authenticator interface {
	Register(ctx context.Context, reg utils.Registration) (*models.User, error)
	RegisterDoctor(ctx context.Context, userID int64, req services.DoctorProfileRequest) (*models.Doctor, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	SendOTP(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

type AuthHandler struct {
	service Authenticator
}

func NewAuthHandler(service Authenticator) *AuthHandler {
	return &AuthHandler{service: service}
}

// Register handles new user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var reg utils.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		middlewares.BadRequest(c, "Invalid request body")
		return
	}

	user, err := h.service.Register(c.Request.Context(), reg)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"message": "User registered", "user": user}, http.StatusCreated)
}

// RegisterDoctor attaches a doctor profile to the calling doctor account.
func (h *AuthHandler) RegisterDoctor(c *gin.Context) {
	var req services.DoctorProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middlewares.BadRequest(c, "Invalid request body")
		return
	}
	userID, _ := caller(c)
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		middlewares.BadRequest(c, "Invalid user ID")
		return
	}

	doctor, err := h.service.RegisterDoctor(c.Request.Context(), id, req)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"doctor": doctor}, http.StatusCreated)
}

// Login authenticates the user and returns the access token along with user info
func (h *AuthHandler) Login(c *gin.Context) {
	var credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&credentials); err != nil {
		middlewares.BadRequest(c, "Invalid request body")
		return
	}

	token, user, err := h.service.Login(c.Request.Context(), credentials.Email, credentials.Password)
	if err != nil {
		middlewares.HttpError(c, err)
		return
	}
	c.Header("Authorization", "Bearer "+token)
	middlewares.RespondJSON(c, gin.H{
		"accessToken": token,
		"tokenType":   "Bearer",
		"user":        user,
	}, http.StatusOK)
}

func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middlewares.BadRequest(c, "Invalid request body")
		return
	}
	if err := h.service.SendOTP(c.Request.Context(), req.Email); err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"message": "If the account exists a reset code has been sent"}, http.StatusOK)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Email       string `json:"email"`
		ResetCode   string `json:"reset_code"`
		NewPassword string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		middlewares.BadRequest(c, "Invalid request body")
		return
	}
	if err := h.service.ResetPassword(c.Request.Context(), req.Email, req.ResetCode, req.NewPassword); err != nil {
		middlewares.HttpError(c, err)
		return
	}
	middlewares.RespondJSON(c, gin.H{"message": "Password updated"}, http.StatusOK)
}
