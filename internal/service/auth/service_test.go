package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ringring-backend/internal/domain"
	apperrors "ringring-backend/pkg/errors"
	"ringring-backend/pkg/jwt"
)

// Mocks
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) Verify(ctx context.Context, credential string) (*domain.Identity, error) {
	args := m.Called(ctx, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Identity), args.Error(1)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) UpsertGoogleUser(ctx context.Context, identity *domain.Identity) (*domain.User, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) UpdateAvatar(ctx context.Context, userID uuid.UUID, avatar string) error {
	args := m.Called(ctx, userID, avatar)
	return args.Error(0)
}

type MockAvatarMirror struct {
	mock.Mock
}

func (m *MockAvatarMirror) MirrorAvatar(ctx context.Context, userID uuid.UUID, srcURL string) (string, error) {
	args := m.Called(ctx, userID, srcURL)
	return args.String(0), args.Error(1)
}

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	args := m.Called(ctx, jti, ttl)
	return args.Error(0)
}

func (m *MockSessionRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

const testSecret = "test-secret-key-at-least-32-chars-long"

func newTestService() (*Service, *MockIdentityProvider, *MockUserRepository, *MockSessionRepository, *jwt.JWTManager) {
	identity := new(MockIdentityProvider)
	users := new(MockUserRepository)
	sessions := new(MockSessionRepository)
	manager := jwt.NewJWTManager(testSecret, "ringring-api", time.Hour)
	return NewService(identity, users, sessions, manager, nil, nil), identity, users, sessions, manager
}

func TestGoogleLogin_Success(t *testing.T) {
	// Setup
	service, identity, users, _, manager := newTestService()
	ctx := context.Background()
	verified := &domain.Identity{
		Subject:       "google-uid-1",
		Name:          "Ada",
		Email:         "ada@example.com",
		AvatarURL:     "https://lh3.googleusercontent.com/a/ada",
		EmailVerified: true,
	}
	stored := &domain.User{
		UserID:    uuid.New(),
		GoogleID:  "google-uid-1",
		Email:     "ada@example.com",
		Name:      "Ada",
		AvatarURL: &verified.AvatarURL,
	}
	identity.On("Verify", ctx, "google-id-token").Return(verified, nil)
	users.On("UpsertGoogleUser", ctx, verified).Return(stored, nil)

	// Execute
	out, err := service.GoogleLogin(ctx, "google-id-token")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, stored.UserID, out.User.UserID)
	assert.Equal(t, "https://lh3.googleusercontent.com/a/ada", *out.User.Avatar)

	claims, err := manager.ValidateToken(out.Token)
	require.NoError(t, err)
	assert.Equal(t, stored.UserID, claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestGoogleLogin_DefaultsName(t *testing.T) {
	service, identity, users, _, _ := newTestService()
	verified := &domain.Identity{Subject: "uid", Email: "x@example.com"}
	identity.On("Verify", mock.Anything, "tok").Return(verified, nil)
	users.On("UpsertGoogleUser", mock.Anything, mock.MatchedBy(func(i *domain.Identity) bool {
		return i.Name == "Unknown"
	})).Return(&domain.User{UserID: uuid.New(), Email: "x@example.com", Name: "Unknown"}, nil)

	out, err := service.GoogleLogin(context.Background(), "tok")

	require.NoError(t, err)
	assert.Equal(t, "Unknown", out.User.Name)
}

func TestGoogleLogin_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		token    string
		identity *domain.Identity
		err      error
		code     apperrors.ErrorCode
	}{
		{name: "empty credential", token: "", code: apperrors.ErrCodeMissingField},
		{name: "invalid credential", token: "bad", err: errors.New("signature invalid"), code: apperrors.ErrCodeIdentity},
		{name: "no email", token: "noemail", identity: &domain.Identity{Subject: "uid"}, code: apperrors.ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, identity, users, _, _ := newTestService()
			if tt.token != "" {
				identity.On("Verify", mock.Anything, tt.token).Return(tt.identity, tt.err)
			}

			_, err := service.GoogleLogin(context.Background(), tt.token)

			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			users.AssertNotCalled(t, "UpsertGoogleUser", mock.Anything, mock.Anything)
		})
	}
}

func TestLogout_RevokesForRemainingLifetime(t *testing.T) {
	// Setup
	service, _, _, sessions, _ := newTestService()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }
	claims := &jwt.Claims{
		UserID: uuid.New(),
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        "jti-1",
			ExpiresAt: gojwt.NewNumericDate(now.Add(20 * time.Minute)),
		},
	}
	sessions.On("RevokeToken", mock.Anything, "jti-1", 20*time.Minute).Return(nil)

	// Execute
	err := service.Logout(context.Background(), claims)

	// Assert
	require.NoError(t, err)
	sessions.AssertExpectations(t)
}

func TestLogout_ExpiredTokenIsNoop(t *testing.T) {
	service, _, _, sessions, _ := newTestService()
	claims := &jwt.Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        "jti-2",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}

	require.NoError(t, service.Logout(context.Background(), claims))
	sessions.AssertNotCalled(t, "RevokeToken", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogout_RedisFailure(t *testing.T) {
	service, _, _, sessions, _ := newTestService()
	claims := &jwt.Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			ID:        "jti-3",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	sessions.On("RevokeToken", mock.Anything, "jti-3", mock.Anything).Return(errors.New("redis down"))

	err := service.Logout(context.Background(), claims)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeServiceUnavail))
}

func TestIdentityFromClaims(t *testing.T) {
	identity := identityFromClaims("sub-1", map[string]interface{}{
		"name":           "Grace",
		"email":          "grace@example.com",
		"picture":        "https://example.com/g.png",
		"email_verified": true,
	})

	assert.Equal(t, &domain.Identity{
		Subject:       "sub-1",
		Name:          "Grace",
		Email:         "grace@example.com",
		AvatarURL:     "https://example.com/g.png",
		EmailVerified: true,
	}, identity)
}

type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) LoginSucceeded(ctx context.Context, userID uuid.UUID, provider string) error {
	return m.Called(ctx, userID, provider).Error(0)
}

func (m *MockAuditor) LoginFailed(ctx context.Context, provider, errorCode, details string) error {
	return m.Called(ctx, provider, errorCode, details).Error(0)
}

func (m *MockAuditor) LoggedOut(ctx context.Context, userID uuid.UUID) error {
	return m.Called(ctx, userID).Error(0)
}

func TestGoogleLogin_Audited(t *testing.T) {
	// Setup
	service, identity, users, _, _ := newTestService()
	auditor := new(MockAuditor)
	service.SetAuditor(auditor)
	userID := uuid.New()

	identity.On("Verify", mock.Anything, "good").Return(&domain.Identity{Subject: "uid", Email: "a@example.com", Name: "Ada"}, nil)
	identity.On("Verify", mock.Anything, "forged").Return(nil, errors.New("bad signature"))
	users.On("UpsertGoogleUser", mock.Anything, mock.Anything).Return(&domain.User{UserID: userID, Email: "a@example.com", Name: "Ada"}, nil)
	auditor.On("LoginSucceeded", mock.Anything, userID, "google").Return(nil)
	// audit failures never fail the login
	auditor.On("LoginFailed", mock.Anything, "google", "identity_rejected", "bad signature").Return(errors.New("redis down"))

	// Execute
	_, okErr := service.GoogleLogin(context.Background(), "good")
	_, badErr := service.GoogleLogin(context.Background(), "forged")

	// Assert
	require.NoError(t, okErr)
	require.Error(t, badErr)
	auditor.AssertExpectations(t)
}

func TestGoogleLogin_MirrorsAvatar(t *testing.T) {
	// Setup
	service, identity, users, _, _ := newTestService()
	mirror := new(MockAvatarMirror)
	service.SetAvatarMirror(mirror)
	verified := &domain.Identity{
		Subject:   "google-uid-1",
		Name:      "Ada",
		Email:     "ada@example.com",
		AvatarURL: "https://lh3.googleusercontent.com/a/ada",
	}
	stored := &domain.User{UserID: uuid.New(), Email: "ada@example.com", Name: "Ada", AvatarURL: &verified.AvatarURL}
	key := "avatars/" + stored.UserID.String() + ".jpg"
	identity.On("Verify", mock.Anything, "tok").Return(verified, nil)
	users.On("UpsertGoogleUser", mock.Anything, verified).Return(stored, nil)
	mirror.On("MirrorAvatar", mock.Anything, stored.UserID, verified.AvatarURL).Return(key, nil)
	users.On("UpdateAvatar", mock.Anything, stored.UserID, key).Return(nil)

	// Execute
	out, err := service.GoogleLogin(context.Background(), "tok")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, out.User.Avatar)
	assert.Equal(t, key, *out.User.Avatar)
	users.AssertExpectations(t)
	mirror.AssertExpectations(t)
}

func TestGoogleLogin_MirrorFailureKeepsProviderAvatar(t *testing.T) {
	// Setup
	service, identity, users, _, _ := newTestService()
	mirror := new(MockAvatarMirror)
	service.SetAvatarMirror(mirror)
	verified := &domain.Identity{
		Subject:   "google-uid-1",
		Name:      "Ada",
		Email:     "ada@example.com",
		AvatarURL: "https://lh3.googleusercontent.com/a/ada",
	}
	stored := &domain.User{UserID: uuid.New(), Email: "ada@example.com", Name: "Ada", AvatarURL: &verified.AvatarURL}
	identity.On("Verify", mock.Anything, "tok").Return(verified, nil)
	users.On("UpsertGoogleUser", mock.Anything, verified).Return(stored, nil)
	mirror.On("MirrorAvatar", mock.Anything, stored.UserID, verified.AvatarURL).
		Return("", apperrors.StorageError(errors.New("bucket unavailable")))

	// Execute
	out, err := service.GoogleLogin(context.Background(), "tok")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, verified.AvatarURL, *out.User.Avatar)
	users.AssertNotCalled(t, "UpdateAvatar", mock.Anything, mock.Anything, mock.Anything)
}
