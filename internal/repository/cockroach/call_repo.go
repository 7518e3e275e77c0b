package cockroach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ringring-backend/internal/domain"
)

// CallRepository is the durable call ledger
type CallRepository struct {
	db DB
}

// NewCallRepository creates a new call repository
func NewCallRepository(db DB) *CallRepository {
	return &CallRepository{db: db}
}

// CreateCall inserts a call record and returns its id. A zero CallID is
// replaced with a fresh one.
func (r *CallRepository) CreateCall(ctx context.Context, call *domain.Call) (uuid.UUID, error) {
	if call.CallID == uuid.Nil {
		call.CallID = uuid.New()
	}
	if call.Status == "" {
		call.Status = domain.CallStatusPending
	}

	query := `
		INSERT INTO calls (
			call_id, caller_id, receiver_id, call_type, status, started_at, ended_at, duration
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		call.CallID,
		call.CallerID,
		call.ReceiverID,
		call.CallType,
		call.Status,
		call.StartedAt,
		call.EndedAt,
		call.Duration,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create call: %w", err)
	}
	return call.CallID, nil
}

// CloseCall writes the terminal status of a pending call. Closing a call
// twice returns ErrCallAlreadyClosed and leaves the first outcome in place.
func (r *CallRepository) CloseCall(ctx context.Context, callID uuid.UUID, endTime time.Time, duration int, status domain.CallStatus) error {
	if duration < 0 {
		duration = 0
	}

	query := `
		UPDATE calls
		SET status = $2,
		    ended_at = $3,
		    duration = $4
		WHERE call_id = $1 AND status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, callID, status, endTime, duration)
	if err != nil {
		return fmt.Errorf("failed to close call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCallAlreadyClosed
	}
	return nil
}

// ReconcilePending marks calls left pending by a previous process as missed
func (r *CallRepository) ReconcilePending(ctx context.Context) (int64, error) {
	query := `
		UPDATE calls
		SET status = 'missed',
		    ended_at = started_at,
		    duration = 0
		WHERE status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile pending calls: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByID retrieves a call by ID
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	query := `
		SELECT call_id, caller_id, receiver_id, call_type, status, started_at, ended_at, duration
		FROM calls
		WHERE call_id = $1
	`
	call, err := scanCall(r.db.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCallNotFound
		}
		return nil, fmt.Errorf("failed to get call: %w", err)
	}
	return call, nil
}

// GetCallHistory returns finished calls involving userID, newest first,
// together with the total number of such calls
func (r *CallRepository) GetCallHistory(ctx context.Context, userID string, limit, offset int) ([]*domain.Call, int64, error) {
	var total int64
	countQuery := `
		SELECT count(*)
		FROM calls
		WHERE (caller_id = $1 OR receiver_id = $1) AND status != 'pending'
	`
	if err := r.db.QueryRow(ctx, countQuery, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count calls: %w", err)
	}

	query := `
		SELECT call_id, caller_id, receiver_id, call_type, status, started_at, ended_at, duration
		FROM calls
		WHERE (caller_id = $1 OR receiver_id = $1) AND status != 'pending'
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get call history: %w", err)
	}
	defer rows.Close()

	var calls []*domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan call: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate calls: %w", err)
	}
	return calls, total, nil
}

func scanCall(row pgx.Row) (*domain.Call, error) {
	call := &domain.Call{}
	err := row.Scan(
		&call.CallID,
		&call.CallerID,
		&call.ReceiverID,
		&call.CallType,
		&call.Status,
		&call.StartedAt,
		&call.EndedAt,
		&call.Duration,
	)
	if err != nil {
		return nil, err
	}
	return call, nil
}
