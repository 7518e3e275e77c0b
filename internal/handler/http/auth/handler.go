package auth

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ringring-backend/internal/middleware"
	"ringring-backend/internal/service/auth"
	"ringring-backend/pkg/jwt"
	"ringring-backend/pkg/response"
)

// Service is the auth service used by the handler
type Service interface {
	GoogleLogin(ctx context.Context, idToken string) (*auth.LoginOutput, error)
	Logout(ctx context.Context, claims *jwt.Claims) error
}

// Handler handles HTTP requests for authentication
type Handler struct {
	authService Service
}

// NewHandler creates a new auth handler
func NewHandler(authService Service) *Handler {
	return &Handler{
		authService: authService,
	}
}

// GoogleLoginRequest represents Google login request body
type GoogleLoginRequest struct {
	IDToken string `json:"idToken" binding:"required"`
}

// GoogleLogin exchanges a Google ID token for an app token
// POST /v1/auth/google
func (h *Handler) GoogleLogin(c *gin.Context) {
	var req GoogleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	output, err := h.authService.GoogleLogin(c.Request.Context(), req.IDToken)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, output)
}

// Logout revokes the caller's token
// POST /v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Logged out"})
}
