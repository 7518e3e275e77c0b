package contact

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/middleware"
	apperrors "ringring-backend/pkg/errors"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Search(ctx context.Context, ownerID uuid.UUID, ringNumber string) (*domain.ContactSearchResult, error) {
	args := m.Called(ctx, ownerID, ringNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContactSearchResult), args.Error(1)
}

func (m *MockService) Add(ctx context.Context, ownerID uuid.UUID, ringNumber string) (*domain.ContactResponse, error) {
	args := m.Called(ctx, ownerID, ringNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContactResponse), args.Error(1)
}

func (m *MockService) List(ctx context.Context, ownerID uuid.UUID) ([]*domain.ContactResponse, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ContactResponse), args.Error(1)
}

func (m *MockService) Update(ctx context.Context, ownerID, contactID uuid.UUID, update domain.ContactUpdate) (*domain.ContactResponse, error) {
	args := m.Called(ctx, ownerID, contactID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContactResponse), args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, ownerID, contactID uuid.UUID) error {
	args := m.Called(ctx, ownerID, contactID)
	return args.Error(0)
}

func (m *MockService) ToggleFavorite(ctx context.Context, ownerID, contactID uuid.UUID) (*domain.ContactResponse, error) {
	args := m.Called(ctx, ownerID, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContactResponse), args.Error(1)
}

func (m *MockService) SetBlocked(ctx context.Context, ownerID, contactID uuid.UUID, blocked bool) (*domain.ContactResponse, error) {
	args := m.Called(ctx, ownerID, contactID, blocked)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ContactResponse), args.Error(1)
}

func newRouter(h *Handler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, userID) })
	contacts := r.Group("/v1/contacts")
	contacts.GET("/search", h.Search)
	contacts.GET("", h.List)
	contacts.POST("", h.Add)
	contacts.PUT("/:contactId", h.Update)
	contacts.DELETE("/:contactId", h.Delete)
	contacts.PATCH("/:contactId/favorite", h.ToggleFavorite)
	contacts.PATCH("/:contactId/block", h.Block)
	return r
}

func TestAdd(t *testing.T) {
	// Setup
	svc := new(MockService)
	owner := uuid.New()
	svc.On("Add", mock.Anything, owner, "1234-5678").Return(&domain.ContactResponse{ID: uuid.New(), Name: "Bob"}, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/contacts", strings.NewReader(`{"ringNumber":"1234-5678"}`))
	req.Header.Set("Content-Type", "application/json")

	// Execute
	newRouter(NewHandler(svc), owner).ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Bob"`)
}

func TestAdd_MissingRingNumber(t *testing.T) {
	// Setup
	svc := new(MockService)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/contacts", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	// Execute
	newRouter(NewHandler(svc), uuid.New()).ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Add", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdd_Duplicate(t *testing.T) {
	// Setup
	svc := new(MockService)
	owner := uuid.New()
	svc.On("Add", mock.Anything, owner, "1234-5678").Return(nil, apperrors.ConflictError("Contact already exists"))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/contacts", strings.NewReader(`{"ringNumber":"1234-5678"}`))
	req.Header.Set("Content-Type", "application/json")

	// Execute
	newRouter(NewHandler(svc), owner).ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeConflict))
}

func TestSearch(t *testing.T) {
	// Setup
	svc := new(MockService)
	owner := uuid.New()
	svc.On("Search", mock.Anything, owner, "1234-5678").Return(&domain.ContactSearchResult{Name: "Bob", IsContact: true}, nil)
	r := newRouter(NewHandler(svc), owner)

	// Execute
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/contacts/search?ringNumber=1234-5678", nil))

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isContact":true`)

	// Execute
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/contacts/search", nil))

	// Assert
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestList(t *testing.T) {
	// Setup
	svc := new(MockService)
	owner := uuid.New()
	svc.On("List", mock.Anything, owner).Return([]*domain.ContactResponse{{Name: "Bob"}, {Name: "Carol"}}, nil)
	w := httptest.NewRecorder()

	// Execute
	newRouter(NewHandler(svc), owner).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/contacts", nil))

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Carol"`)
}

func TestUpdate_MalformedIDIsNotFound(t *testing.T) {
	// Setup
	svc := new(MockService)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/contacts/not-a-uuid", strings.NewReader(`{"nickname":"B"}`))
	req.Header.Set("Content-Type", "application/json")

	// Execute
	newRouter(NewHandler(svc), uuid.New()).ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(apperrors.ErrCodeNotFound))
}

func TestDelete_UnknownContact(t *testing.T) {
	// Setup
	svc := new(MockService)
	owner, id := uuid.New(), uuid.New()
	svc.On("Delete", mock.Anything, owner, id).Return(apperrors.NotFoundError("Contact"))
	w := httptest.NewRecorder()

	// Execute
	newRouter(NewHandler(svc), owner).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/contacts/"+id.String(), nil))

	// Assert
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Contact not found")
}

func TestToggleFavorite(t *testing.T) {
	// Setup
	svc := new(MockService)
	owner, id := uuid.New(), uuid.New()
	svc.On("ToggleFavorite", mock.Anything, owner, id).Return(&domain.ContactResponse{ID: id, IsFavorite: true}, nil)
	w := httptest.NewRecorder()

	// Execute
	newRouter(NewHandler(svc), owner).ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/v1/contacts/"+id.String()+"/favorite", nil))

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isFavorite":true`)
}

func TestBlock_DefaultsToBlockAndAcceptsUnblock(t *testing.T) {
	// Setup
	svc := new(MockService)
	owner, id := uuid.New(), uuid.New()
	svc.On("SetBlocked", mock.Anything, owner, id, true).Return(&domain.ContactResponse{ID: id, IsBlocked: true}, nil)
	svc.On("SetBlocked", mock.Anything, owner, id, false).Return(&domain.ContactResponse{ID: id}, nil)
	r := newRouter(NewHandler(svc), owner)

	// Execute
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/v1/contacts/"+id.String()+"/block", nil))

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"isBlocked":true`)

	// Execute
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/v1/contacts/"+id.String()+"/block", strings.NewReader(`{"blocked":false}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}
