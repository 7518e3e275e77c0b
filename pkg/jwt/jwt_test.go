package jwt

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJWTManager(t *testing.T) {
	manager := NewJWTManager("test-secret-key-for-testing-purposes", "ringring-api", time.Hour)

	assert.NotNil(t, manager)
	assert.Equal(t, "ringring-api", manager.audience)
	assert.Equal(t, time.Hour, manager.accessTokenDuration)
}

func TestValidateToken_ValidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "ringring-api", time.Hour)
	userID := uuid.New()

	token, err := manager.GenerateAccessToken(userID, "ada@example.com", "Ada")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(token)

	assert.NoError(t, err)
	require.NotNil(t, claims)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "Ada", claims.Name)
	assert.Equal(t, "ringring-auth", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "ringring-api", time.Minute)
	manager.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, err := manager.GenerateAccessToken(uuid.New(), "ada@example.com", "Ada")
	require.NoError(t, err)

	manager.now = time.Now
	claims, err := manager.ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
	assert.Contains(t, err.Error(), "expired")
	assert.True(t, IsExpired(err))
}

func TestValidateToken_InvalidToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "ringring-api", time.Hour)

	claims, err := manager.ValidateToken("invalid.token.here")

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-1", "ringring-api", time.Hour).
		GenerateAccessToken(uuid.New(), "ada@example.com", "Ada")
	require.NoError(t, err)

	claims, err := NewJWTManager("secret-2", "ringring-api", time.Hour).ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestValidateToken_WrongAudience(t *testing.T) {
	token, err := NewJWTManager("test-secret", "other-api", time.Hour).
		GenerateAccessToken(uuid.New(), "ada@example.com", "Ada")
	require.NoError(t, err)

	claims, err := NewJWTManager("test-secret", "ringring-api", time.Hour).ValidateToken(token)

	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestClaimsRemaining(t *testing.T) {
	manager := NewJWTManager("test-secret", "ringring-api", time.Hour)
	token, err := manager.GenerateAccessToken(uuid.New(), "ada@example.com", "Ada")
	require.NoError(t, err)
	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)

	remaining := claims.Remaining(time.Now())
	assert.True(t, remaining > 59*time.Minute && remaining <= time.Hour)
	assert.Zero(t, claims.Remaining(time.Now().Add(2*time.Hour)))
}
