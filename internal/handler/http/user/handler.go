package user

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/middleware"
	"ringring-backend/pkg/response"
)

// Service is the user service used by the handler
type Service interface {
	GetMe(ctx context.Context, userID uuid.UUID) (*domain.UserResponse, error)
	AssignRingNumber(ctx context.Context, userID uuid.UUID) (*domain.UserResponse, error)
	LookupByRingNumber(ctx context.Context, ringNumber string) (*domain.UserResponse, error)
}

// Handler handles user profile HTTP requests
type Handler struct {
	userService Service
}

// NewHandler creates a new user handler
func NewHandler(userService Service) *Handler {
	return &Handler{userService: userService}
}

// GetMe returns the current user's profile
// GET /v1/users/me
func (h *Handler) GetMe(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	user, err := h.userService.GetMe(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}

// AssignRingNumber gives the current user a ring number
// POST /v1/users/me/ring-number
func (h *Handler) AssignRingNumber(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	user, err := h.userService.AssignRingNumber(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// LookupByRingNumber finds a user by ring number
// GET /v1/users/ring/:ringNumber
func (h *Handler) LookupByRingNumber(c *gin.Context) {
	user, err := h.userService.LookupByRingNumber(c.Request.Context(), c.Param("ringNumber"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}
