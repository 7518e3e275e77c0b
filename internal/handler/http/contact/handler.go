package contact

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/middleware"
	"ringring-backend/pkg/response"
)

// Service is the contact service used by the handler
type Service interface {
	Search(ctx context.Context, ownerID uuid.UUID, ringNumber string) (*domain.ContactSearchResult, error)
	Add(ctx context.Context, ownerID uuid.UUID, ringNumber string) (*domain.ContactResponse, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]*domain.ContactResponse, error)
	Update(ctx context.Context, ownerID, contactID uuid.UUID, update domain.ContactUpdate) (*domain.ContactResponse, error)
	Delete(ctx context.Context, ownerID, contactID uuid.UUID) error
	ToggleFavorite(ctx context.Context, ownerID, contactID uuid.UUID) (*domain.ContactResponse, error)
	SetBlocked(ctx context.Context, ownerID, contactID uuid.UUID, blocked bool) (*domain.ContactResponse, error)
}

// Handler handles address book HTTP requests
type Handler struct {
	contactService Service
}

// NewHandler creates a new contact handler
func NewHandler(contactService Service) *Handler {
	return &Handler{contactService: contactService}
}

// AddContactRequest is the body of POST /v1/contacts
type AddContactRequest struct {
	RingNumber string `json:"ringNumber" binding:"required"`
}

// BlockRequest is the optional body of PATCH /v1/contacts/:contactId/block
type BlockRequest struct {
	Blocked *bool `json:"blocked"`
}

// Search looks up a user by ring number
// GET /v1/contacts/search?ringNumber=
func (h *Handler) Search(c *gin.Context) {
	ownerID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	ringNumber := c.Query("ringNumber")
	if ringNumber == "" {
		response.ValidationError(c, "ringNumber is required")
		return
	}

	result, err := h.contactService.Search(c.Request.Context(), ownerID, ringNumber)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// List returns the address book
// GET /v1/contacts
func (h *Handler) List(c *gin.Context) {
	ownerID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	contacts, err := h.contactService.List(c.Request.Context(), ownerID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, contacts)
}

// Add puts a user in the address book by ring number
// POST /v1/contacts
func (h *Handler) Add(c *gin.Context) {
	ownerID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	var req AddContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "ringNumber is required")
		return
	}

	contact, err := h.contactService.Add(c.Request.Context(), ownerID, req.RingNumber)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, contact)
}

// Update edits a contact
// PUT /v1/contacts/:contactId
func (h *Handler) Update(c *gin.Context) {
	ownerID, contactID, ok := h.target(c)
	if !ok {
		return
	}

	var update domain.ContactUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		response.ValidationError(c, "Invalid request body")
		return
	}

	contact, err := h.contactService.Update(c.Request.Context(), ownerID, contactID, update)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, contact)
}

// Delete removes a contact
// DELETE /v1/contacts/:contactId
func (h *Handler) Delete(c *gin.Context) {
	ownerID, contactID, ok := h.target(c)
	if !ok {
		return
	}

	if err := h.contactService.Delete(c.Request.Context(), ownerID, contactID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Contact deleted"})
}

// ToggleFavorite flips the favorite flag
// PATCH /v1/contacts/:contactId/favorite
func (h *Handler) ToggleFavorite(c *gin.Context) {
	ownerID, contactID, ok := h.target(c)
	if !ok {
		return
	}

	contact, err := h.contactService.ToggleFavorite(c.Request.Context(), ownerID, contactID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, contact)
}

// Block blocks a contact, or unblocks it when the body says
// {"blocked": false}
// PATCH /v1/contacts/:contactId/block
func (h *Handler) Block(c *gin.Context) {
	ownerID, contactID, ok := h.target(c)
	if !ok {
		return
	}

	blocked := true
	if c.Request.ContentLength > 0 {
		var req BlockRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationError(c, "Invalid request body")
			return
		}
		if req.Blocked != nil {
			blocked = *req.Blocked
		}
	}

	contact, err := h.contactService.SetBlocked(c.Request.Context(), ownerID, contactID, blocked)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, contact)
}

func (h *Handler) target(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	ownerID, ok := middleware.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, uuid.Nil, false
	}
	contactID, err := uuid.Parse(c.Param("contactId"))
	if err != nil {
		response.NotFound(c, "Contact not found")
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, contactID, true
}
