package push

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ringring-backend/internal/middleware"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/push"
	"ringring-backend/pkg/response"
)

// TokenRegistrar stores device tokens
type TokenRegistrar interface {
	RegisterToken(ctx context.Context, token *push.Token) error
}

// Handler handles push notification HTTP requests
type Handler struct {
	pushService TokenRegistrar
}

// NewHandler creates a new push notification handler
func NewHandler(pushService TokenRegistrar) *Handler {
	return &Handler{
		pushService: pushService,
	}
}

// RegisterTokenRequest represents request to register a push token. Type
// defaults to apns for ios and fcm otherwise.
type RegisterTokenRequest struct {
	Token    string         `json:"token" binding:"required"`
	Platform string         `json:"platform" binding:"required,oneof=ios android web"`
	Type     push.TokenType `json:"type"`
}

// RegisterToken registers a push token for the authenticated user
// POST /v1/users/me/push-tokens
func (h *Handler) RegisterToken(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req RegisterTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	tokenType := req.Type
	if tokenType == "" {
		tokenType = push.TokenTypeFCM
		if req.Platform == "ios" {
			tokenType = push.TokenTypeAPNs
		}
	}
	if !tokenType.Valid() {
		response.ValidationError(c, "type must be fcm or apns")
		return
	}

	now := time.Now().Unix()
	token := &push.Token{
		ID:        uuid.New(),
		UserID:    userID.String(),
		Token:     strings.TrimSpace(req.Token),
		Type:      tokenType,
		Platform:  req.Platform,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.pushService.RegisterToken(c.Request.Context(), token); err != nil {
		logger.Error("Failed to register push token",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		response.InternalError(c, "Failed to register push token")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"id":       token.ID,
		"type":     token.Type,
		"platform": token.Platform,
	})
}
