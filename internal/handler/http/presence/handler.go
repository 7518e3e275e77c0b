package presence

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/response"
)

// Mirror is the shared presence view kept in Redis
type Mirror interface {
	GetOnlineUsers(ctx context.Context) ([]domain.OnlineUser, error)
	IsDegraded() bool
}

// Local is this server's own registry
type Local interface {
	OnlineUsers() []domain.OnlineUser
}

// Handler serves the online set
type Handler struct {
	mirror Mirror
	local  Local
}

// NewHandler creates a presence handler. mirror may be nil.
func NewHandler(mirror Mirror, local Local) *Handler {
	return &Handler{mirror: mirror, local: local}
}

// OnlineResponse is the online set and where it was read from
type OnlineResponse struct {
	Users  []domain.OnlineUser `json:"users"`
	Source string              `json:"source"`
}

// GetOnlineUsers returns the current online set
// GET /v1/presence/online
func (h *Handler) GetOnlineUsers(c *gin.Context) {
	if h.mirror != nil && !h.mirror.IsDegraded() {
		users, err := h.mirror.GetOnlineUsers(c.Request.Context())
		if err == nil {
			response.Success(c, http.StatusOK, OnlineResponse{Users: users, Source: "redis"})
			return
		}
		logger.Warn("Presence mirror read failed, serving local registry", zap.Error(err))
	}

	response.Success(c, http.StatusOK, OnlineResponse{Users: h.local.OnlineUsers(), Source: "local"})
}
