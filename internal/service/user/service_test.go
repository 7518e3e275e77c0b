package user

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/repository/cockroach"
	apperrors "ringring-backend/pkg/errors"
)

// Mocks
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByRingNumber(ctx context.Context, ringNumber string) (*domain.User, error) {
	args := m.Called(ctx, ringNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) SetRingNumber(ctx context.Context, userID uuid.UUID, ringNumber string) error {
	args := m.Called(ctx, userID, ringNumber)
	return args.Error(0)
}

type stubAvatars struct{}

func (stubAvatars) ResolveAvatar(_ context.Context, ref *string) *string {
	signed := "https://cdn.example/" + *ref + "?sig=1"
	return &signed
}

func strPtr(s string) *string { return &s }

func newTestUser() *domain.User {
	return &domain.User{
		UserID:    uuid.New(),
		Email:     "ada@example.com",
		Name:      "Ada",
		AvatarURL: strPtr("ada.png"),
	}
}

// sequence returns the given ring numbers in order
func sequence(numbers ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		n := numbers[i%len(numbers)]
		i++
		return n, nil
	}
}

func TestGetMe(t *testing.T) {
	// Setup
	mockRepo := new(MockUserRepository)
	service := NewService(mockRepo, stubAvatars{})
	u := newTestUser()
	mockRepo.On("GetByID", mock.Anything, u.UserID).Return(u, nil)

	// Execute
	resp, err := service.GetMe(context.Background(), u.UserID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Ada", resp.Name)
	assert.Equal(t, "ada@example.com", resp.Email)
	require.NotNil(t, resp.Avatar)
	assert.Equal(t, "https://cdn.example/ada.png?sig=1", *resp.Avatar)
}

func TestGetMe_NotFound(t *testing.T) {
	mockRepo := new(MockUserRepository)
	service := NewService(mockRepo, nil)
	id := uuid.New()
	mockRepo.On("GetByID", mock.Anything, id).Return(nil, cockroach.ErrUserNotFound)

	_, err := service.GetMe(context.Background(), id)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))
}

func TestAssignRingNumber_RetriesCollisions(t *testing.T) {
	// Setup
	mockRepo := new(MockUserRepository)
	service := NewService(mockRepo, nil)
	service.ringNumber = sequence("1111-1111", "2222-2222")
	u := newTestUser()
	mockRepo.On("GetByID", mock.Anything, u.UserID).Return(u, nil)
	mockRepo.On("SetRingNumber", mock.Anything, u.UserID, "1111-1111").Return(cockroach.ErrRingNumberTaken)
	mockRepo.On("SetRingNumber", mock.Anything, u.UserID, "2222-2222").Return(nil)

	// Execute
	resp, err := service.AssignRingNumber(context.Background(), u.UserID)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, resp.RingNumber)
	assert.Equal(t, "2222-2222", *resp.RingNumber)
	mockRepo.AssertExpectations(t)
}

func TestAssignRingNumber_AlreadyAssigned(t *testing.T) {
	mockRepo := new(MockUserRepository)
	service := NewService(mockRepo, nil)
	u := newTestUser()
	u.RingNumber = strPtr("1234-5678")
	mockRepo.On("GetByID", mock.Anything, u.UserID).Return(u, nil)

	_, err := service.AssignRingNumber(context.Background(), u.UserID)

	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusConflict, appErr.StatusCode)
	mockRepo.AssertNotCalled(t, "SetRingNumber", mock.Anything, mock.Anything, mock.Anything)
}

func TestAssignRingNumber_ConcurrentAssignment(t *testing.T) {
	mockRepo := new(MockUserRepository)
	service := NewService(mockRepo, nil)
	service.ringNumber = sequence("1111-1111")
	u := newTestUser()
	mockRepo.On("GetByID", mock.Anything, u.UserID).Return(u, nil)
	mockRepo.On("SetRingNumber", mock.Anything, u.UserID, "1111-1111").Return(cockroach.ErrRingNumberAssigned)

	_, err := service.AssignRingNumber(context.Background(), u.UserID)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRingNumberTaken))
}

func TestAssignRingNumber_GivesUp(t *testing.T) {
	// Setup
	mockRepo := new(MockUserRepository)
	service := NewService(mockRepo, nil)
	service.ringNumber = sequence("1111-1111")
	u := newTestUser()
	mockRepo.On("GetByID", mock.Anything, u.UserID).Return(u, nil)
	mockRepo.On("SetRingNumber", mock.Anything, u.UserID, "1111-1111").Return(cockroach.ErrRingNumberTaken)

	// Execute
	_, err := service.AssignRingNumber(context.Background(), u.UserID)

	// Assert
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternal))
	mockRepo.AssertNumberOfCalls(t, "SetRingNumber", 10)
}

func TestRandomRingNumber(t *testing.T) {
	for i := 0; i < 50; i++ {
		n, err := randomRingNumber()
		require.NoError(t, err)
		assert.True(t, ValidRingNumber(n), n)
		assert.NotEqual(t, byte('0'), n[0])
	}
}

func TestLookupByRingNumber(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		service := NewService(mockRepo, nil)

		_, err := service.LookupByRingNumber(context.Background(), "12345678")

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})

	t.Run("found hides email", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		service := NewService(mockRepo, nil)
		u := newTestUser()
		u.RingNumber = strPtr("1234-5678")
		mockRepo.On("GetByRingNumber", mock.Anything, "1234-5678").Return(u, nil)

		resp, err := service.LookupByRingNumber(context.Background(), "1234-5678")

		require.NoError(t, err)
		assert.Empty(t, resp.Email)
		assert.Equal(t, u.UserID, resp.UserID)
		assert.Equal(t, "ada.png", *resp.Avatar)
	})

	t.Run("unknown", func(t *testing.T) {
		mockRepo := new(MockUserRepository)
		service := NewService(mockRepo, nil)
		mockRepo.On("GetByRingNumber", mock.Anything, "0000-0000").Return(nil, cockroach.ErrUserNotFound)

		_, err := service.LookupByRingNumber(context.Background(), "0000-0000")

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUserNotFound))
	})
}

func TestLookupProfile(t *testing.T) {
	mockRepo := new(MockUserRepository)
	service := NewService(mockRepo, stubAvatars{})
	u := newTestUser()
	mockRepo.On("GetByID", mock.Anything, u.UserID).Return(u, nil)

	profile, err := service.LookupProfile(context.Background(), u.UserID.String())

	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.Name)
	assert.Equal(t, "https://cdn.example/ada.png?sig=1", *profile.Avatar)

	_, err = service.LookupProfile(context.Background(), "not-a-uuid")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
}

func TestGetMe_DatabaseError(t *testing.T) {
	mockRepo := new(MockUserRepository)
	service := NewService(mockRepo, nil)
	id := uuid.New()
	mockRepo.On("GetByID", mock.Anything, id).Return(nil, errors.New("connection reset"))

	_, err := service.GetMe(context.Background(), id)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDatabase))
}
