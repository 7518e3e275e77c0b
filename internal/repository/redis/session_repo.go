package redis

import (
	"context"
	"fmt"
	"time"

	"ringring-backend/internal/database"
)

// SessionRepository keeps the revocation list for app tokens in Redis
type SessionRepository struct {
	client *database.RedisClient
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(client *database.RedisClient) *SessionRepository {
	return &SessionRepository{client: client}
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}

// RevokeToken blacklists a token id until the token would have expired anyway
func (r *SessionRepository) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.SafeSet(ctx, blacklistKey(jti), "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsTokenRevoked checks the blacklist for a token id
func (r *SessionRepository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	exists, err := r.client.SafeExists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist in redis: %w", err)
	}
	return exists > 0, nil
}
