package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ringring-backend/internal/domain"
)

// MockCallRepository is a mock implementation of CallRepository and Ledger
type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) CreateCall(ctx context.Context, call *domain.Call) (uuid.UUID, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockCallRepository) CloseCall(ctx context.Context, callID uuid.UUID, endTime time.Time, duration int, status domain.CallStatus) error {
	args := m.Called(ctx, callID, endTime, duration, status)
	return args.Error(0)
}

func (m *MockCallRepository) ReconcilePending(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCallRepository) GetCallHistory(ctx context.Context, userID string, limit, offset int) ([]*domain.Call, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.Call), args.Get(1).(int64), args.Error(2)
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByIDs(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*domain.User), args.Error(1)
}

type prefixResolver struct{}

func (prefixResolver) ResolveAvatar(_ context.Context, ref *string) *string {
	if ref == nil {
		return nil
	}
	s := "https://cdn.test/" + *ref
	return &s
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestGetCallHistory(t *testing.T) {
	// Setup
	callRepo := new(MockCallRepository)
	userRepo := new(MockUserRepository)
	service := NewService(callRepo, userRepo, prefixResolver{})

	me := uuid.New()
	bob := uuid.New()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(93 * time.Second)

	calls := []*domain.Call{
		{CallID: uuid.New(), CallerID: me.String(), ReceiverID: bob.String(), CallType: domain.CallTypeVideo,
			Status: domain.CallStatusCompleted, StartedAt: start, EndedAt: &end, Duration: intPtr(93)},
		{CallID: uuid.New(), CallerID: bob.String(), ReceiverID: me.String(), CallType: domain.CallTypeAudio,
			Status: domain.CallStatusMissed, StartedAt: start.Add(-time.Hour)},
	}
	callRepo.On("GetCallHistory", mock.Anything, me.String(), 20, 20).Return(calls, int64(45), nil)
	userRepo.On("GetByIDs", mock.Anything, []uuid.UUID{bob}).Return(map[uuid.UUID]*domain.User{
		bob: {UserID: bob, Name: "Bob", AvatarURL: strPtr("avatars/bob.png"), RingNumber: strPtr("1234-5678")},
	}, nil)

	// Execute
	page, err := service.GetCallHistory(context.Background(), me.String(), 2, 20)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(45), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 3, page.Pages)
	require.Len(t, page.Calls, 2)

	first := page.Calls[0]
	assert.False(t, first.IsIncoming)
	assert.Equal(t, 93, first.Duration)
	assert.Equal(t, "Bob", first.Contact.Name)
	assert.Equal(t, "https://cdn.test/avatars/bob.png", *first.Contact.Avatar)
	assert.Equal(t, "1234-5678", *first.Contact.RingNumber)

	second := page.Calls[1]
	assert.True(t, second.IsIncoming)
	assert.Equal(t, 0, second.Duration)
	assert.Nil(t, second.EndTime)
	assert.Equal(t, bob.String(), second.Contact.ID)
}

func TestGetCallHistory_LimitClamped(t *testing.T) {
	// Setup
	callRepo := new(MockCallRepository)
	service := NewService(callRepo, new(MockUserRepository), nil)
	callRepo.On("GetCallHistory", mock.Anything, "u1", 100, 0).Return([]*domain.Call{}, int64(0), nil)

	// Execute
	page, err := service.GetCallHistory(context.Background(), "u1", 0, 500)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 0, page.Pages)
	assert.Empty(t, page.Calls)
	callRepo.AssertExpectations(t)
}

func TestGetCallHistory_UnknownContact(t *testing.T) {
	// Setup
	callRepo := new(MockCallRepository)
	userRepo := new(MockUserRepository)
	service := NewService(callRepo, userRepo, nil)
	ghost := uuid.New()

	callRepo.On("GetCallHistory", mock.Anything, "me", 20, 0).Return([]*domain.Call{
		{CallID: uuid.New(), CallerID: "me", ReceiverID: ghost.String(), Status: domain.CallStatusCancelled},
	}, int64(1), nil)
	userRepo.On("GetByIDs", mock.Anything, []uuid.UUID{ghost}).Return(map[uuid.UUID]*domain.User{}, nil)

	// Execute
	page, err := service.GetCallHistory(context.Background(), "me", 1, 20)

	// Assert
	require.NoError(t, err)
	require.Len(t, page.Calls, 1)
	assert.Equal(t, ghost.String(), page.Calls[0].Contact.ID)
	assert.Empty(t, page.Calls[0].Contact.Name)
}

func TestGetCallHistory_RepositoryError(t *testing.T) {
	// Setup
	callRepo := new(MockCallRepository)
	service := NewService(callRepo, new(MockUserRepository), nil)
	callRepo.On("GetCallHistory", mock.Anything, "me", 20, 0).Return(nil, int64(0), errors.New("db down"))

	// Execute
	page, err := service.GetCallHistory(context.Background(), "me", 1, 20)

	// Assert
	assert.Nil(t, page)
	assert.ErrorContains(t, err, "db down")
}

func TestReconcilePending(t *testing.T) {
	// Setup
	callRepo := new(MockCallRepository)
	service := NewService(callRepo, nil, nil)
	callRepo.On("ReconcilePending", mock.Anything).Return(int64(3), nil)

	// Execute
	n, err := service.ReconcilePending(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
