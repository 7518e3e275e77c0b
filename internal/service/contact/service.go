// Package contact manages each user's address book and the block relations
// the signaling router enforces.
package contact

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/repository/cockroach"
	apperrors "ringring-backend/pkg/errors"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/sanitize"
)

// ContactRepository interface
type ContactRepository interface {
	Create(ctx context.Context, ownerID, contactUserID uuid.UUID) (*domain.Contact, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Contact, error)
	GetByID(ctx context.Context, ownerID, contactID uuid.UUID) (*domain.Contact, error)
	FindRelation(ctx context.Context, ownerID, contactUserID uuid.UUID) (*domain.Contact, error)
	Update(ctx context.Context, ownerID, contactID uuid.UUID, update domain.ContactUpdate) (*domain.Contact, error)
	Delete(ctx context.Context, ownerID, contactID uuid.UUID) error
	ListBlockedPairs(ctx context.Context) ([]domain.BlockedPair, error)
}

// UserRepository interface
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	GetByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.User, error)
	GetByRingNumber(ctx context.Context, ringNumber string) (*domain.User, error)
}

// AvatarResolver turns a stored avatar reference into a loadable URL
type AvatarResolver interface {
	ResolveAvatar(ctx context.Context, ref *string) *string
}

// Service handles contact business logic
type Service struct {
	contacts ContactRepository
	users    UserRepository
	avatars  AvatarResolver
	blocks   *BlockList
}

// NewService creates a new contact service. blocks is kept in step with
// every block and unblock.
func NewService(contacts ContactRepository, users UserRepository, avatars AvatarResolver, blocks *BlockList) *Service {
	return &Service{
		contacts: contacts,
		users:    users,
		avatars:  avatars,
		blocks:   blocks,
	}
}

// LoadBlocks fills the block list from the database
func (s *Service) LoadBlocks(ctx context.Context) (int, error) {
	pairs, err := s.contacts.ListBlockedPairs(ctx)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	s.blocks.Replace(pairs)
	return len(pairs), nil
}

// Search finds the user behind a ring number and reports whether they are
// already in the searcher's contacts
func (s *Service) Search(ctx context.Context, ownerID uuid.UUID, ringNumber string) (*domain.ContactSearchResult, error) {
	u, err := s.userByRingNumber(ctx, ringNumber)
	if err != nil {
		return nil, err
	}
	if u.UserID == ownerID {
		return nil, apperrors.ValidationError("Cannot search yourself")
	}

	result := &domain.ContactSearchResult{
		ID:         u.UserID,
		Name:       u.Name,
		Email:      u.Email,
		Avatar:     s.avatars.ResolveAvatar(ctx, u.AvatarURL),
		RingNumber: u.RingNumber,
	}
	existing, err := s.contacts.FindRelation(ctx, ownerID, u.UserID)
	switch {
	case err == nil:
		result.IsContact = true
		result.IsFavorite = existing.IsFavorite
	case !errors.Is(err, cockroach.ErrContactNotFound):
		return nil, apperrors.DatabaseError(err)
	}
	return result, nil
}

// Add puts the user behind ringNumber in the owner's contacts
func (s *Service) Add(ctx context.Context, ownerID uuid.UUID, ringNumber string) (*domain.ContactResponse, error) {
	u, err := s.userByRingNumber(ctx, ringNumber)
	if err != nil {
		return nil, err
	}
	if u.UserID == ownerID {
		return nil, apperrors.ValidationError("Cannot add yourself as a contact")
	}

	c, err := s.contacts.Create(ctx, ownerID, u.UserID)
	if err != nil {
		if errors.Is(err, cockroach.ErrContactExists) {
			return nil, apperrors.ConflictError("Contact already exists")
		}
		return nil, apperrors.DatabaseError(err)
	}

	logger.Info("Contact added",
		zap.String("owner_id", ownerID.String()),
		zap.String("contact_user_id", u.UserID.String()))
	return s.toResponse(ctx, c, u), nil
}

// List returns the owner's unblocked contacts, favorites first
func (s *Service) List(ctx context.Context, ownerID uuid.UUID) ([]*domain.ContactResponse, error) {
	contacts, err := s.contacts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	ids := make([]uuid.UUID, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ContactUserID)
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	out := make([]*domain.ContactResponse, 0, len(contacts))
	for _, c := range contacts {
		u, ok := users[c.ContactUserID]
		if !ok {
			continue
		}
		out = append(out, s.toResponse(ctx, c, u))
	}
	return out, nil
}

// Update edits nickname, notes, favorite or blocked state
func (s *Service) Update(ctx context.Context, ownerID, contactID uuid.UUID, update domain.ContactUpdate) (*domain.ContactResponse, error) {
	if update.Nickname != nil {
		cleaned := sanitize.DisplayName(*update.Nickname)
		update.Nickname = &cleaned
	}
	if update.Notes != nil {
		cleaned := sanitize.StripControlCharacters(*update.Notes)
		update.Notes = &cleaned
	}

	c, err := s.contacts.Update(ctx, ownerID, contactID, update)
	if err != nil {
		return nil, contactError(err)
	}
	if update.IsBlocked != nil {
		s.blocks.Set(c.OwnerID.String(), c.ContactUserID.String(), c.IsBlocked)
		logger.Info("Contact block changed",
			zap.String("owner_id", ownerID.String()),
			zap.String("contact_user_id", c.ContactUserID.String()),
			zap.Bool("blocked", c.IsBlocked))
	}

	u, err := s.users.GetByID(ctx, c.ContactUserID)
	if err != nil {
		if errors.Is(err, cockroach.ErrUserNotFound) {
			return nil, apperrors.UserNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return s.toResponse(ctx, c, u), nil
}

// Delete removes a contact. Removing a blocked contact lifts the block.
func (s *Service) Delete(ctx context.Context, ownerID, contactID uuid.UUID) error {
	c, err := s.contacts.GetByID(ctx, ownerID, contactID)
	if err != nil {
		return contactError(err)
	}
	if err := s.contacts.Delete(ctx, ownerID, contactID); err != nil {
		return contactError(err)
	}
	if c.IsBlocked {
		s.blocks.Set(c.OwnerID.String(), c.ContactUserID.String(), false)
	}
	return nil
}

// ToggleFavorite flips the favorite flag
func (s *Service) ToggleFavorite(ctx context.Context, ownerID, contactID uuid.UUID) (*domain.ContactResponse, error) {
	c, err := s.contacts.GetByID(ctx, ownerID, contactID)
	if err != nil {
		return nil, contactError(err)
	}
	favorite := !c.IsFavorite
	return s.Update(ctx, ownerID, contactID, domain.ContactUpdate{IsFavorite: &favorite})
}

// SetBlocked blocks or unblocks a contact
func (s *Service) SetBlocked(ctx context.Context, ownerID, contactID uuid.UUID, blocked bool) (*domain.ContactResponse, error) {
	return s.Update(ctx, ownerID, contactID, domain.ContactUpdate{IsBlocked: &blocked})
}

func (s *Service) userByRingNumber(ctx context.Context, ringNumber string) (*domain.User, error) {
	if ringNumber == "" {
		return nil, apperrors.MissingFieldError("ringNumber")
	}
	u, err := s.users.GetByRingNumber(ctx, ringNumber)
	if err != nil {
		if errors.Is(err, cockroach.ErrUserNotFound) {
			return nil, apperrors.UserNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return u, nil
}

func (s *Service) toResponse(ctx context.Context, c *domain.Contact, u *domain.User) *domain.ContactResponse {
	return &domain.ContactResponse{
		ID:         c.ContactID,
		UserID:     u.UserID,
		Name:       u.Name,
		Email:      u.Email,
		Avatar:     s.avatars.ResolveAvatar(ctx, u.AvatarURL),
		RingNumber: u.RingNumber,
		Nickname:   c.Nickname,
		Notes:      c.Notes,
		IsFavorite: c.IsFavorite,
		IsBlocked:  c.IsBlocked,
	}
}

func contactError(err error) error {
	if errors.Is(err, cockroach.ErrContactNotFound) {
		return apperrors.NotFoundError("Contact")
	}
	return apperrors.DatabaseError(err)
}
