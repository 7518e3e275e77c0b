package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"ringring-backend/internal/database"
	"ringring-backend/internal/domain"
	"ringring-backend/pkg/constants"
	"ringring-backend/pkg/logger"
)

const onlineSetKey = "presence:online"

// PresenceRepository mirrors signaling presence into Redis
type PresenceRepository struct {
	client *database.RedisClient
	ttl    time.Duration
}

// NewPresenceRepository creates a new PresenceRepository
func NewPresenceRepository(client *database.RedisClient) *PresenceRepository {
	return &PresenceRepository{client: client, ttl: constants.PresenceTTL}
}

func presenceKey(userID string) string {
	return fmt.Sprintf("presence:user:%s", userID)
}

// SetUserOnline stores the user's card with a TTL and adds them to the online set
func (r *PresenceRepository) SetUserOnline(ctx context.Context, user domain.OnlineUser) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	if err := r.client.SafeSet(ctx, presenceKey(user.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set user online: %w", err)
	}
	if err := r.client.SafeSAdd(ctx, onlineSetKey, user.UserID).Err(); err != nil {
		return fmt.Errorf("failed to add to online set: %w", err)
	}
	return nil
}

// SetUserOffline removes the user's card and online set membership
func (r *PresenceRepository) SetUserOffline(ctx context.Context, userID string) error {
	if err := r.client.SafeDel(ctx, presenceKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete presence: %w", err)
	}
	if err := r.client.SafeSRem(ctx, onlineSetKey, userID).Err(); err != nil {
		return fmt.Errorf("failed to remove from online set: %w", err)
	}
	return nil
}

// RefreshPresence extends the TTL of every listed user
func (r *PresenceRepository) RefreshPresence(ctx context.Context, userIDs []string) error {
	for _, id := range userIDs {
		if err := r.client.SafeExpire(ctx, presenceKey(id), r.ttl).Err(); err != nil {
			return fmt.Errorf("failed to refresh presence: %w", err)
		}
	}
	return nil
}

// GetOnlineUsers returns the mirrored online set sorted by user id. Members
// whose card has expired are pruned from the set.
func (r *PresenceRepository) GetOnlineUsers(ctx context.Context) ([]domain.OnlineUser, error) {
	ids, err := r.client.SafeSMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get online users: %w", err)
	}
	if len(ids) == 0 {
		return []domain.OnlineUser{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = presenceKey(id)
	}
	values, err := r.client.SafeMGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get presence cards: %w", err)
	}

	users := make([]domain.OnlineUser, 0, len(ids))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var u domain.OnlineUser
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			logger.Warn("Skipping malformed presence card",
				zap.String("user_id", ids[i]),
				zap.Error(err))
			continue
		}
		users = append(users, u)
	}

	if len(stale) > 0 {
		if err := r.client.SafeSRem(ctx, onlineSetKey, stale...).Err(); err != nil {
			logger.Warn("Failed to prune expired presence", zap.Error(err))
		}
	}

	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

// IsDegraded returns true if Redis is in degraded mode
func (r *PresenceRepository) IsDegraded() bool {
	return r.client.IsDegraded()
}
