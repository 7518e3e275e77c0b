package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	apperrors "ringring-backend/pkg/errors"
	"ringring-backend/pkg/jwt"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/metrics"
)

const defaultDisplayName = "Unknown"

// UserRepository interface
type UserRepository interface {
	UpsertGoogleUser(ctx context.Context, identity *domain.Identity) (*domain.User, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, avatar string) error
}

// SessionRepository interface
type SessionRepository interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// AvatarResolver turns a stored avatar reference into a loadable URL
type AvatarResolver interface {
	ResolveAvatar(ctx context.Context, ref *string) *string
}

// TokenIssuer issues app tokens
type TokenIssuer interface {
	GenerateAccessToken(userID uuid.UUID, email, name string) (string, error)
}

// AvatarMirror copies an external avatar into object storage and returns
// its object key
type AvatarMirror interface {
	MirrorAvatar(ctx context.Context, userID uuid.UUID, srcURL string) (string, error)
}

// Auditor records authentication events
type Auditor interface {
	LoginSucceeded(ctx context.Context, userID uuid.UUID, provider string) error
	LoginFailed(ctx context.Context, provider, errorCode, details string) error
	LoggedOut(ctx context.Context, userID uuid.UUID) error
}

// Service handles authentication business logic
type Service struct {
	identity    IdentityProvider
	userRepo    UserRepository
	sessionRepo SessionRepository
	tokens      TokenIssuer
	avatars     AvatarResolver
	metrics     *metrics.Metrics
	auditor     Auditor
	mirror      AvatarMirror
	now         func() time.Time
}

// NewService creates a new auth service. avatars and m may be nil.
func NewService(
	identity IdentityProvider,
	userRepo UserRepository,
	sessionRepo SessionRepository,
	tokens TokenIssuer,
	avatars AvatarResolver,
	m *metrics.Metrics,
) *Service {
	return &Service{
		identity:    identity,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		avatars:     avatars,
		metrics:     m,
		now:         time.Now,
	}
}

// LoginOutput contains login result
type LoginOutput struct {
	User  *domain.UserResponse `json:"user"`
	Token string               `json:"token"`
}

// SetAuditor enables the audit trail for logins and logouts
func (s *Service) SetAuditor(a Auditor) {
	s.auditor = a
}

// SetAvatarMirror makes logins copy the provider's avatar into object storage
func (s *Service) SetAvatarMirror(m AvatarMirror) {
	s.mirror = m
}

// GoogleLogin verifies the Google credential, creates or refreshes the user
// and issues an app token
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*LoginOutput, error) {
	if idToken == "" {
		return nil, apperrors.MissingFieldError("idToken")
	}

	identity, err := s.identity.Verify(ctx, idToken)
	if err != nil {
		s.recordAttempt(false)
		s.auditFailure(ctx, "identity_rejected", err.Error())
		logger.Warn("Google identity rejected", zap.Error(err))
		return nil, apperrors.IdentityRejectedError(err)
	}
	if identity.Email == "" {
		s.recordAttempt(false)
		s.auditFailure(ctx, "missing_email", identity.Subject)
		return nil, apperrors.ValidationError("Email is required for user creation")
	}
	if identity.Name == "" {
		identity.Name = defaultDisplayName
	}

	user, err := s.userRepo.UpsertGoogleUser(ctx, identity)
	if err != nil {
		s.recordAttempt(false)
		return nil, apperrors.DatabaseError(err)
	}

	s.mirrorAvatar(ctx, user, identity.AvatarURL)

	token, err := s.tokens.GenerateAccessToken(user.UserID, user.Email, user.Name)
	if err != nil {
		s.recordAttempt(false)
		return nil, apperrors.InternalError("Failed to issue token")
	}

	s.recordAttempt(true)
	if s.auditor != nil {
		if err := s.auditor.LoginSucceeded(ctx, user.UserID, "google"); err != nil {
			logger.Warn("Failed to audit login", zap.Error(err))
		}
	}
	logger.Info("User logged in",
		zap.String("user_id", user.UserID.String()))

	var avatar *string
	if s.avatars != nil {
		avatar = s.avatars.ResolveAvatar(ctx, user.AvatarURL)
	} else {
		avatar = user.AvatarURL
	}

	return &LoginOutput{
		User:  user.ToResponse(avatar),
		Token: token,
	}, nil
}

// Logout revokes the token until it would have expired anyway
func (s *Service) Logout(ctx context.Context, claims *jwt.Claims) error {
	if claims == nil || claims.ID == "" {
		return apperrors.InvalidTokenError("Token has no id")
	}

	ttl := claims.Remaining(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.sessionRepo.RevokeToken(ctx, claims.ID, ttl); err != nil {
		return apperrors.ServiceUnavailableError("Failed to revoke token")
	}

	if s.auditor != nil {
		if err := s.auditor.LoggedOut(ctx, claims.UserID); err != nil {
			logger.Warn("Failed to audit logout", zap.Error(err))
		}
	}
	logger.Info("User logged out",
		zap.String("user_id", claims.UserID.String()),
		zap.Duration("revoked_for", ttl))
	return nil
}

// IsTokenRevoked reports whether the token id was logged out
func (s *Service) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return s.sessionRepo.IsTokenRevoked(ctx, jti)
}

// mirrorAvatar replaces the provider URL with a stored copy. Failures keep
// the provider URL.
func (s *Service) mirrorAvatar(ctx context.Context, user *domain.User, srcURL string) {
	if s.mirror == nil || srcURL == "" {
		return
	}

	key, err := s.mirror.MirrorAvatar(ctx, user.UserID, srcURL)
	if apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		logger.Debug("Provider avatar not mirrored",
			zap.String("user_id", user.UserID.String()),
			zap.Error(err))
		return
	}
	if err != nil {
		logger.Warn("Failed to mirror avatar",
			zap.String("user_id", user.UserID.String()),
			zap.Error(err))
		return
	}
	if err := s.userRepo.UpdateAvatar(ctx, user.UserID, key); err != nil {
		logger.Warn("Failed to store avatar key",
			zap.String("user_id", user.UserID.String()),
			zap.Error(err))
		return
	}
	user.AvatarURL = &key
}

func (s *Service) auditFailure(ctx context.Context, code, details string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LoginFailed(ctx, "google", code, details); err != nil {
		logger.Warn("Failed to audit login failure", zap.Error(err))
	}
}

func (s *Service) recordAttempt(success bool) {
	if s.metrics != nil {
		s.metrics.RecordAuthAttempt("google", success)
	}
}
