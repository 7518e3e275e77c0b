package call

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/middleware"
	"ringring-backend/pkg/pagination"
	"ringring-backend/pkg/response"
)

// HistoryService reads call history
type HistoryService interface {
	GetCallHistory(ctx context.Context, userID string, page, limit int) (*domain.CallHistoryPage, error)
}

// Handler handles call history HTTP requests
type Handler struct {
	callService HistoryService
}

// NewHandler creates a new call handler
func NewHandler(callService HistoryService) *Handler {
	return &Handler{callService: callService}
}

// GetCallHistory returns the caller's call history, newest first
// GET /v1/calls/history?page=&limit=
func (h *Handler) GetCallHistory(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	params, err := pagination.ParseParams(c.Query("page"), c.Query("limit"))
	if err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	history, err := h.callService.GetCallHistory(c.Request.Context(), userID.String(), params.Page, params.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, history)
}
