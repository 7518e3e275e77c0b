package call

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/pagination"
)

// CallRepository is the read and maintenance side of the call ledger
type CallRepository interface {
	ReconcilePending(ctx context.Context) (int64, error)
	GetCallHistory(ctx context.Context, userID string, limit, offset int) ([]*domain.Call, int64, error)
}

// UserRepository resolves history contacts
type UserRepository interface {
	GetByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.User, error)
}

// AvatarResolver turns a stored avatar reference into something a client can load
type AvatarResolver interface {
	ResolveAvatar(ctx context.Context, ref *string) *string
}

// Service handles call history
type Service struct {
	callRepo CallRepository
	userRepo UserRepository
	avatars  AvatarResolver
}

// NewService creates a new call service. avatars may be nil, in which case
// stored avatar references are returned unchanged.
func NewService(callRepo CallRepository, userRepo UserRepository, avatars AvatarResolver) *Service {
	return &Service{
		callRepo: callRepo,
		userRepo: userRepo,
		avatars:  avatars,
	}
}

// ReconcilePending closes ledger records a previous process left pending
func (s *Service) ReconcilePending(ctx context.Context) (int64, error) {
	n, err := s.callRepo.ReconcilePending(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reconcile call ledger: %w", err)
	}
	if n > 0 {
		logger.Info("Reconciled pending calls as missed", zap.Int64("count", n))
	}
	return n, nil
}

// GetCallHistory returns one page of userID's finished calls, newest first
func (s *Service) GetCallHistory(ctx context.Context, userID string, page, limit int) (*domain.CallHistoryPage, error) {
	if page < 1 {
		page = 1
	}
	limit = pagination.ClampLimit(limit)

	calls, total, err := s.callRepo.GetCallHistory(ctx, userID, limit, pagination.CalculateOffset(page, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get call history: %w", err)
	}

	contacts, err := s.contactsFor(ctx, userID, calls)
	if err != nil {
		return nil, err
	}

	entries := make([]*domain.CallHistoryEntry, 0, len(calls))
	for _, c := range calls {
		other := c.CallerID
		if other == userID {
			other = c.ReceiverID
		}
		contact, ok := contacts[other]
		if !ok {
			contact = domain.CallContact{ID: other}
		}

		duration := 0
		if c.Duration != nil {
			duration = *c.Duration
		}
		entries = append(entries, &domain.CallHistoryEntry{
			ID:         c.CallID,
			Type:       c.CallType,
			Status:     c.Status,
			Duration:   duration,
			StartTime:  c.StartedAt,
			EndTime:    c.EndedAt,
			IsIncoming: c.ReceiverID == userID,
			Contact:    contact,
		})
	}

	return &domain.CallHistoryPage{
		Calls: entries,
		Total: total,
		Page:  page,
		Pages: pagination.CalculateTotalPages(total, limit),
	}, nil
}

func (s *Service) contactsFor(ctx context.Context, userID string, calls []*domain.Call) (map[string]domain.CallContact, error) {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, c := range calls {
		other := c.CallerID
		if other == userID {
			other = c.ReceiverID
		}
		id, err := uuid.Parse(other)
		if err != nil {
			continue
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	contacts := make(map[string]domain.CallContact, len(ids))
	if len(ids) == 0 {
		return contacts, nil
	}

	users, err := s.userRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get call contacts: %w", err)
	}
	for id, u := range users {
		avatar := u.AvatarURL
		if s.avatars != nil {
			avatar = s.avatars.ResolveAvatar(ctx, u.AvatarURL)
		}
		contacts[id.String()] = domain.CallContact{
			ID:         id.String(),
			Name:       u.Name,
			Avatar:     avatar,
			RingNumber: u.RingNumber,
		}
	}
	return contacts, nil
}
