// Package audit records authentication events in per-day Redis lists.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ringring-backend/pkg/constants"
)

// EventType represents the type of audit event
type EventType string

const (
	EventLoginSuccess EventType = "login_success"
	EventLoginFailed  EventType = "login_failed"
	EventLogout       EventType = "logout"
)

// Event represents an audit log entry
type Event struct {
	EventID   uuid.UUID  `json:"event_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	EventType EventType  `json:"event_type"`
	Provider  string     `json:"provider,omitempty"`
	Success   bool       `json:"success"`
	ErrorCode string     `json:"error_code,omitempty"`
	Details   string     `json:"details,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Logger writes audit events to Redis
type Logger struct {
	redisClient *redis.Client
	now         func() time.Time
}

// NewLogger creates a new audit logger
func NewLogger(redisClient *redis.Client) *Logger {
	return &Logger{
		redisClient: redisClient,
		now:         time.Now,
	}
}

func dayKey(t time.Time) string {
	return fmt.Sprintf("audit:events:%s", t.UTC().Format("2006-01-02"))
}

// stamp fills the event id and timestamp and returns the list key and
// the encoded member
func (l *Logger) stamp(event *Event) (string, []byte, error) {
	event.Timestamp = l.now().UTC()
	if event.EventID == uuid.Nil {
		event.EventID = uuid.New()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal audit event: %w", err)
	}
	return dayKey(event.Timestamp), data, nil
}

// Log stores an audit event
func (l *Logger) Log(ctx context.Context, event *Event) error {
	key, data, err := l.stamp(event)
	if err != nil {
		return err
	}

	pipe := l.redisClient.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, constants.AuditMaxEventsPerDay-1)
	pipe.Expire(ctx, key, constants.AuditLogRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}
	return nil
}

// LoginSucceeded records a successful login
func (l *Logger) LoginSucceeded(ctx context.Context, userID uuid.UUID, provider string) error {
	return l.Log(ctx, &Event{
		UserID:    &userID,
		EventType: EventLoginSuccess,
		Provider:  provider,
		Success:   true,
	})
}

// LoginFailed records a rejected login
func (l *Logger) LoginFailed(ctx context.Context, provider, errorCode, details string) error {
	return l.Log(ctx, &Event{
		EventType: EventLoginFailed,
		Provider:  provider,
		ErrorCode: errorCode,
		Details:   details,
	})
}

// LoggedOut records a logout
func (l *Logger) LoggedOut(ctx context.Context, userID uuid.UUID) error {
	return l.Log(ctx, &Event{
		UserID:    &userID,
		EventType: EventLogout,
		Success:   true,
	})
}

// Recent returns up to limit of the newest events recorded on day
func (l *Logger) Recent(ctx context.Context, day time.Time, limit int) ([]*Event, error) {
	members, err := l.redisClient.LRange(ctx, dayKey(day), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit events: %w", err)
	}
	return decodeEvents(members), nil
}

func decodeEvents(members []string) []*Event {
	events := make([]*Event, 0, len(members))
	for _, member := range members {
		var event Event
		if err := json.Unmarshal([]byte(member), &event); err != nil {
			continue
		}
		events = append(events, &event)
	}
	return events
}
