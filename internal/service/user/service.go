package user

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/repository/cockroach"
	"ringring-backend/pkg/constants"
	apperrors "ringring-backend/pkg/errors"
	"ringring-backend/pkg/logger"
)

var ringNumberPattern = regexp.MustCompile(`^\d{4}-\d{4}$`)

// UserRepository interface
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	GetByRingNumber(ctx context.Context, ringNumber string) (*domain.User, error)
	SetRingNumber(ctx context.Context, userID uuid.UUID, ringNumber string) error
}

// AvatarResolver turns a stored avatar reference into a loadable URL
type AvatarResolver interface {
	ResolveAvatar(ctx context.Context, ref *string) *string
}

// Service handles user profile business logic
type Service struct {
	userRepo   UserRepository
	avatars    AvatarResolver
	ringNumber func() (string, error)
}

// NewService creates a new user service. avatars may be nil, in which case
// stored avatar references are returned as-is.
func NewService(userRepo UserRepository, avatars AvatarResolver) *Service {
	return &Service{
		userRepo:   userRepo,
		avatars:    avatars,
		ringNumber: randomRingNumber,
	}
}

// ValidRingNumber reports whether s has the XXXX-XXXX digit form
func ValidRingNumber(s string) bool {
	return ringNumberPattern.MatchString(s)
}

// ResolveAvatar implements the call service's avatar resolver
func (s *Service) ResolveAvatar(ctx context.Context, ref *string) *string {
	if ref == nil || *ref == "" {
		return nil
	}
	if s.avatars == nil {
		return ref
	}
	return s.avatars.ResolveAvatar(ctx, ref)
}

// GetMe returns the profile of the authenticated user
func (s *Service) GetMe(ctx context.Context, userID uuid.UUID) (*domain.UserResponse, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return u.ToResponse(s.ResolveAvatar(ctx, u.AvatarURL)), nil
}

// AssignRingNumber gives the user a fresh ring number. A user keeps the
// first number assigned.
func (s *Service) AssignRingNumber(ctx context.Context, userID uuid.UUID) (*domain.UserResponse, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.RingNumber != nil {
		return nil, apperrors.RingNumberTakenError()
	}

	for attempt := 1; attempt <= constants.RingNumberAttempts; attempt++ {
		candidate, err := s.ringNumber()
		if err != nil {
			return nil, apperrors.InternalError("Failed to generate ring number")
		}

		err = s.userRepo.SetRingNumber(ctx, userID, candidate)
		switch {
		case err == nil:
			u.RingNumber = &candidate
			logger.Info("Ring number assigned",
				zap.String("user_id", userID.String()),
				zap.Int("attempt", attempt))
			return u.ToResponse(s.ResolveAvatar(ctx, u.AvatarURL)), nil
		case errors.Is(err, cockroach.ErrRingNumberTaken):
			continue
		case errors.Is(err, cockroach.ErrRingNumberAssigned):
			return nil, apperrors.RingNumberTakenError()
		default:
			return nil, apperrors.DatabaseError(err)
		}
	}

	logger.Error("Ring number space exhausted",
		zap.String("user_id", userID.String()),
		zap.Int("attempts", constants.RingNumberAttempts))
	return nil, apperrors.InternalError("Failed to generate unique ring number")
}

// LookupByRingNumber finds the public profile behind a ring number
func (s *Service) LookupByRingNumber(ctx context.Context, ringNumber string) (*domain.UserResponse, error) {
	if !ValidRingNumber(ringNumber) {
		return nil, apperrors.ValidationError("Ring number must have the form XXXX-XXXX")
	}

	u, err := s.userRepo.GetByRingNumber(ctx, ringNumber)
	if err != nil {
		if errors.Is(err, cockroach.ErrUserNotFound) {
			return nil, apperrors.UserNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}

	resp := u.ToResponse(s.ResolveAvatar(ctx, u.AvatarURL))
	resp.Email = ""
	return resp, nil
}

// LookupProfile returns the display name and avatar of a user id
func (s *Service) LookupProfile(ctx context.Context, userID string) (domain.Profile, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return domain.Profile{}, apperrors.InvalidInputError("Invalid user id")
	}
	u, err := s.getUser(ctx, id)
	if err != nil {
		return domain.Profile{}, err
	}
	return domain.Profile{Name: u.Name, Avatar: s.ResolveAvatar(ctx, u.AvatarURL)}, nil
}

func (s *Service) getUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, cockroach.ErrUserNotFound) {
			return nil, apperrors.UserNotFoundError()
		}
		return nil, apperrors.DatabaseError(err)
	}
	return u, nil
}

func randomRingNumber() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(90_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to read random number: %w", err)
	}
	digits := fmt.Sprintf("%08d", n.Int64()+10_000_000)
	return digits[:4] + "-" + digits[4:], nil
}
