package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered user (users table)
type User struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	GoogleID      string    `json:"-" db:"google_id"`
	Email         string    `json:"email" db:"email"`
	Name          string    `json:"name" db:"name"`
	AvatarURL     *string   `json:"avatar_url,omitempty" db:"avatar_url"`
	RingNumber    *string   `json:"ring_number,omitempty" db:"ring_number"`
	EmailVerified bool      `json:"email_verified" db:"email_verified"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// UserResponse is the user representation returned to clients
type UserResponse struct {
	UserID     uuid.UUID `json:"id"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name"`
	Avatar     *string   `json:"avatar,omitempty"`
	RingNumber *string   `json:"ringNumber,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ToResponse converts User to UserResponse. avatar is the resolved avatar
// reference, which may differ from the stored object key.
func (u *User) ToResponse(avatar *string) *UserResponse {
	return &UserResponse{
		UserID:     u.UserID,
		Email:      u.Email,
		Name:       u.Name,
		Avatar:     avatar,
		RingNumber: u.RingNumber,
		CreatedAt:  u.CreatedAt,
	}
}

// Identity is a verified identity returned by the external identity provider
type Identity struct {
	Subject       string
	Name          string
	Email         string
	AvatarURL     string
	EmailVerified bool
}

// Profile is the display data the signaling layer needs for a user
type Profile struct {
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}
