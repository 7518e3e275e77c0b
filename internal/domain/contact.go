package domain

import (
	"time"

	"github.com/google/uuid"
)

// Contact is one entry of a user's address book (contacts table)
type Contact struct {
	ContactID     uuid.UUID `json:"contact_id" db:"contact_id"`
	OwnerID       uuid.UUID `json:"owner_id" db:"owner_id"`
	ContactUserID uuid.UUID `json:"contact_user_id" db:"contact_user_id"`
	Nickname      *string   `json:"nickname,omitempty" db:"nickname"`
	Notes         *string   `json:"notes,omitempty" db:"notes"`
	IsFavorite    bool      `json:"is_favorite" db:"is_favorite"`
	IsBlocked     bool      `json:"is_blocked" db:"is_blocked"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// ContactUpdate carries the editable fields of a contact. Nil fields are
// left unchanged.
type ContactUpdate struct {
	Nickname   *string `json:"nickname"`
	Notes      *string `json:"notes"`
	IsFavorite *bool   `json:"isFavorite"`
	IsBlocked  *bool   `json:"isBlocked"`
}

// ContactResponse is a contact joined with the public profile of its user
type ContactResponse struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"userId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Avatar     *string   `json:"avatar,omitempty"`
	RingNumber *string   `json:"ringNumber,omitempty"`
	Nickname   *string   `json:"nickname,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
	IsFavorite bool      `json:"isFavorite"`
	IsBlocked  bool      `json:"isBlocked"`
}

// ContactSearchResult is a ring-number match and its relation to the searcher
type ContactSearchResult struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Avatar     *string   `json:"avatar,omitempty"`
	RingNumber *string   `json:"ringNumber,omitempty"`
	IsContact  bool      `json:"isContact"`
	IsFavorite bool      `json:"isFavorite"`
}

// BlockedPair is one block relation: Owner refuses calls from Blocked
type BlockedPair struct {
	OwnerID   uuid.UUID
	BlockedID uuid.UUID
}
