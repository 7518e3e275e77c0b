package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"ringring-backend/internal/database"
	"ringring-backend/internal/domain"
)

// CallEventRepository is the append-only call journal, partitioned by call id
type CallEventRepository struct {
	db *database.CassandraDB
}

// NewCallEventRepository creates a new CallEventRepository
func NewCallEventRepository(db *database.CassandraDB) *CallEventRepository {
	return &CallEventRepository{db: db}
}

// EnsureSchema creates the journal table if it does not exist
func (r *CallEventRepository) EnsureSchema(ctx context.Context) error {
	stmt := `
		CREATE TABLE IF NOT EXISTS call_events_by_call (
			call_id text,
			occurred_at timestamp,
			event_id timeuuid,
			kind text,
			caller_id text,
			receiver_id text,
			status text,
			duration int,
			PRIMARY KEY ((call_id), occurred_at, event_id)
		) WITH CLUSTERING ORDER BY (occurred_at ASC, event_id ASC)
	`
	if err := r.db.ExecWithContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create call_events_by_call: %w", err)
	}
	return nil
}

// Append writes one event
func (r *CallEventRepository) Append(ctx context.Context, event *domain.CallEvent) error {
	if event.EventID == (gocql.UUID{}) {
		event.EventID = gocql.UUIDFromTime(event.OccurredAt)
	}

	query := `
		INSERT INTO call_events_by_call (
			call_id, occurred_at, event_id, kind, caller_id, receiver_id, status, duration
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := r.db.ExecWithContext(ctx, query,
		event.CallID,
		event.OccurredAt,
		event.EventID,
		string(event.Kind),
		event.CallerID,
		event.ReceiverID,
		string(event.Status),
		event.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to append call event: %w", err)
	}
	return nil
}

// GetByCall returns the events of one call in the order they happened
func (r *CallEventRepository) GetByCall(ctx context.Context, callID string, limit int) ([]*domain.CallEvent, error) {
	query := `
		SELECT call_id, occurred_at, event_id, kind, caller_id, receiver_id, status, duration
		FROM call_events_by_call
		WHERE call_id = ?
		LIMIT ?
	`
	iter := r.db.Iter(ctx, query, callID, limit)

	var events []*domain.CallEvent
	for {
		var kind, status string
		event := &domain.CallEvent{}
		if !iter.Scan(
			&event.CallID,
			&event.OccurredAt,
			&event.EventID,
			&kind,
			&event.CallerID,
			&event.ReceiverID,
			&status,
			&event.Duration,
		) {
			break
		}
		event.Kind = domain.CallEventKind(kind)
		event.Status = domain.CallStatus(status)
		events = append(events, event)
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to get call events: %w", err)
	}
	return events, nil
}
