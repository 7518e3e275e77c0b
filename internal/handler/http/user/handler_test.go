package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/middleware"
	apperrors "ringring-backend/pkg/errors"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) GetMe(ctx context.Context, userID uuid.UUID) (*domain.UserResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserResponse), args.Error(1)
}

func (m *MockService) AssignRingNumber(ctx context.Context, userID uuid.UUID) (*domain.UserResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserResponse), args.Error(1)
}

func (m *MockService) LookupByRingNumber(ctx context.Context, ringNumber string) (*domain.UserResponse, error) {
	args := m.Called(ctx, ringNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserResponse), args.Error(1)
}

func newRouter(h *Handler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, userID) })
	r.GET("/v1/users/me", h.GetMe)
	r.POST("/v1/users/me/ring-number", h.AssignRingNumber)
	r.GET("/v1/users/ring/:ringNumber", h.LookupByRingNumber)
	return r
}

func TestGetMe(t *testing.T) {
	// Setup
	svc := new(MockService)
	userID := uuid.New()
	svc.On("GetMe", mock.Anything, userID).Return(&domain.UserResponse{UserID: userID, Name: "Ada"}, nil)
	w := httptest.NewRecorder()

	// Execute
	newRouter(NewHandler(svc), userID).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/me", nil))

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool                `json:"success"`
		Data    domain.UserResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Ada", body.Data.Name)
}

func TestAssignRingNumber_Conflict(t *testing.T) {
	svc := new(MockService)
	userID := uuid.New()
	svc.On("AssignRingNumber", mock.Anything, userID).Return(nil, apperrors.RingNumberTakenError())
	w := httptest.NewRecorder()

	newRouter(NewHandler(svc), userID).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/users/me/ring-number", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeRingNumberTaken))
}

func TestLookupByRingNumber(t *testing.T) {
	svc := new(MockService)
	rn := "1234-5678"
	svc.On("LookupByRingNumber", mock.Anything, "1234-5678").Return(&domain.UserResponse{Name: "Bob", RingNumber: &rn}, nil)
	svc.On("LookupByRingNumber", mock.Anything, "9999-9999").Return(nil, apperrors.UserNotFoundError())
	r := newRouter(NewHandler(svc), uuid.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/ring/1234-5678", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ringNumber":"1234-5678"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users/ring/9999-9999", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
