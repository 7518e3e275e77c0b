package push

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Store(ctx context.Context, token *Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenRepository) GetByUserID(ctx context.Context, userID string) ([]*Token, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Token), args.Error(1)
}

func (m *MockTokenRepository) GetByToken(ctx context.Context, token string) (*Token, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Token), args.Error(1)
}

func (m *MockTokenRepository) Update(ctx context.Context, token *Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenRepository) MarkInactive(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

type stubProvider struct {
	result *SendResult
	err    error
	tokens []string
	last   *Notification
}

func (s *stubProvider) Send(ctx context.Context, n *Notification, tokens []string) (*SendResult, error) {
	s.tokens = tokens
	s.last = n
	return s.result, s.err
}

func TestRegisterToken_New(t *testing.T) {
	// Setup
	repo := new(MockTokenRepository)
	svc := NewService(&MockProvider{}, repo)
	token := &Token{UserID: "u1", Token: "tok-1", Type: TokenTypeFCM}

	repo.On("GetByToken", mock.Anything, "tok-1").Return(nil, nil)
	repo.On("Store", mock.Anything, mock.MatchedBy(func(tk *Token) bool {
		return tk.Active && tk.UserID == "u1"
	})).Return(nil)

	// Execute
	err := svc.RegisterToken(context.Background(), token)

	// Assert
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestRegisterToken_ExistingMovesOwner(t *testing.T) {
	// Setup
	repo := new(MockTokenRepository)
	svc := NewService(&MockProvider{}, repo)
	existing := &Token{UserID: "old", Token: "tok-1", Type: TokenTypeFCM, Active: false}

	repo.On("GetByToken", mock.Anything, "tok-1").Return(existing, nil)
	repo.On("Update", mock.Anything, existing).Return(nil)

	// Execute
	err := svc.RegisterToken(context.Background(), &Token{UserID: "new", Token: "tok-1", Type: TokenTypeAPNs})

	// Assert
	require.NoError(t, err)
	assert.True(t, existing.Active)
	assert.Equal(t, "new", existing.UserID)
	assert.Equal(t, TokenTypeAPNs, existing.Type)
	repo.AssertNotCalled(t, "Store", mock.Anything, mock.Anything)
}

func TestSendMissedCallNotification(t *testing.T) {
	// Setup
	repo := new(MockTokenRepository)
	provider := &stubProvider{result: &SendResult{SuccessCount: 1, FailureCount: 1, InvalidTokens: []string{"tok-dead"}}}
	svc := NewService(provider, repo)

	repo.On("GetByUserID", mock.Anything, "bob").Return([]*Token{
		{Token: "tok-live", Active: true},
		{Token: "tok-dead", Active: true},
		{Token: "tok-off", Active: false},
	}, nil)
	repo.On("MarkInactive", mock.Anything, "tok-dead").Return(nil)

	// Execute
	err := svc.SendMissedCallNotification(context.Background(), MissedCall{
		CallerID: "alice", CallerName: "Alice", ReceiverID: "bob", CallType: "video",
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-live", "tok-dead"}, provider.tokens)
	assert.Equal(t, "Missed Call", provider.last.Title)
	assert.Equal(t, "You missed a video call from Alice", provider.last.Body)
	assert.Equal(t, "alice", provider.last.Data["caller_id"])
	repo.AssertExpectations(t)
}

func TestSendMissedCallNotification_NoTokens(t *testing.T) {
	// Setup
	repo := new(MockTokenRepository)
	provider := &MockProvider{}
	svc := NewService(provider, repo)
	repo.On("GetByUserID", mock.Anything, "bob").Return([]*Token{}, nil)

	// Execute
	err := svc.SendMissedCallNotification(context.Background(), MissedCall{ReceiverID: "bob"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, provider.NotificationsSent)
}

func TestSendMissedCallNotification_ProviderError(t *testing.T) {
	// Setup
	repo := new(MockTokenRepository)
	provider := &stubProvider{err: errors.New("unavailable")}
	svc := NewService(provider, repo)
	repo.On("GetByUserID", mock.Anything, "bob").Return([]*Token{{Token: "tok", Active: true}}, nil)

	// Execute
	err := svc.SendMissedCallNotification(context.Background(), MissedCall{ReceiverID: "bob"})

	// Assert
	assert.ErrorContains(t, err, "unavailable")
}

func TestMaskPushToken(t *testing.T) {
	assert.Equal(t, "********", maskPushToken("short"))
	assert.Equal(t, "abcdefgh...stuvwxyz", maskPushToken("abcdefghijklmnopqrstuvwxyz"))
}
