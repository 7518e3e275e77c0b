package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "ringring-backend/pkg/errors"
)

type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStorage) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *MockObjectStorage) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expires, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

func (m *MockObjectStorage) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, _ := io.ReadAll(reader)
	args := m.Called(ctx, bucketName, objectName, string(data), objectSize, opts)
	return minio.UploadInfo{Bucket: bucketName, Key: objectName, Size: objectSize}, args.Error(0)
}

func strPtr(s string) *string { return &s }

func TestResolveAvatar_PassesThroughURLs(t *testing.T) {
	// Setup
	mockStorage := new(MockObjectStorage)
	store := NewAvatarStore(mockStorage, "avatars")

	// Execute
	got := store.ResolveAvatar(context.Background(), strPtr("https://lh3.googleusercontent.com/a/photo"))

	// Assert
	require.NotNil(t, got)
	assert.Equal(t, "https://lh3.googleusercontent.com/a/photo", *got)
	mockStorage.AssertNotCalled(t, "PresignedGetObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveAvatar_PresignsObjectKeys(t *testing.T) {
	// Setup
	mockStorage := new(MockObjectStorage)
	store := NewAvatarStore(mockStorage, "avatars")
	signed, _ := url.Parse("http://minio:9000/avatars/u1.png?X-Amz-Signature=abc")
	mockStorage.On("PresignedGetObject", mock.Anything, "avatars", "u1.png", 15*time.Minute, url.Values(nil)).
		Return(signed, nil)

	// Execute
	got := store.ResolveAvatar(context.Background(), strPtr("u1.png"))

	// Assert
	require.NotNil(t, got)
	assert.Equal(t, signed.String(), *got)
	mockStorage.AssertExpectations(t)
}

func TestResolveAvatar_EmptyAndFailures(t *testing.T) {
	// Setup
	mockStorage := new(MockObjectStorage)
	store := NewAvatarStore(mockStorage, "avatars")
	mockStorage.On("PresignedGetObject", mock.Anything, "avatars", "broken.png", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	// Execute & Assert
	assert.Nil(t, store.ResolveAvatar(context.Background(), nil))
	assert.Nil(t, store.ResolveAvatar(context.Background(), strPtr("")))
	assert.Nil(t, store.ResolveAvatar(context.Background(), strPtr("broken.png")))
}

func TestEnsureBucket(t *testing.T) {
	t.Run("creates missing bucket", func(t *testing.T) {
		mockStorage := new(MockObjectStorage)
		store := NewAvatarStore(mockStorage, "avatars")
		mockStorage.On("BucketExists", mock.Anything, "avatars").Return(false, nil)
		mockStorage.On("MakeBucket", mock.Anything, "avatars", minio.MakeBucketOptions{}).Return(nil)

		require.NoError(t, store.EnsureBucket(context.Background()))
		mockStorage.AssertExpectations(t)
	})

	t.Run("existing bucket is left alone", func(t *testing.T) {
		mockStorage := new(MockObjectStorage)
		store := NewAvatarStore(mockStorage, "avatars")
		mockStorage.On("BucketExists", mock.Anything, "avatars").Return(true, nil)

		require.NoError(t, store.EnsureBucket(context.Background()))
		mockStorage.AssertNotCalled(t, "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
	})
}

func avatarServer(t *testing.T, contentType, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMirrorAvatar_StoresUnderUserKey(t *testing.T) {
	// Setup
	srv := avatarServer(t, "image/png; charset=binary", "PNGDATA", http.StatusOK)
	mockStorage := new(MockObjectStorage)
	store := NewAvatarStore(mockStorage, "media")
	userID := uuid.MustParse("0b8f2f9e-3c55-4d4e-9a51-0f3a9d1c2b7e")
	mockStorage.On("PutObject", mock.Anything, "media", "avatars/"+userID.String()+".png", "PNGDATA", int64(7),
		minio.PutObjectOptions{ContentType: "image/png"}).Return(nil)

	// Execute
	key, err := store.MirrorAvatar(context.Background(), userID, srv.URL+"/photo")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "avatars/"+userID.String()+".png", key)
	mockStorage.AssertExpectations(t)
}

func TestMirrorAvatar_Failures(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		putErr      error
		code        apperrors.ErrorCode
	}{
		{"upstream error", "image/png", "", http.StatusNotFound, nil, apperrors.ErrCodeStorage},
		{"not an image", "text/html", "<html>", http.StatusOK, nil, apperrors.ErrCodeInvalidInput},
		{"too large", "image/jpeg", strings.Repeat("x", 2<<20+1), http.StatusOK, nil, apperrors.ErrCodeStorage},
		{"bucket down", "image/jpeg", "JPEG", http.StatusOK, errors.New("connection refused"), apperrors.ErrCodeStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup
			srv := avatarServer(t, tt.contentType, tt.body, tt.status)
			mockStorage := new(MockObjectStorage)
			store := NewAvatarStore(mockStorage, "media")
			mockStorage.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(tt.putErr)

			// Execute
			key, err := store.MirrorAvatar(context.Background(), uuid.New(), srv.URL)

			// Assert
			require.Error(t, err)
			assert.Empty(t, key)
			assert.True(t, apperrors.HasCode(err, tt.code), err.Error())
		})
	}
}

func TestMirrorAvatar_UnsupportedTypeDetails(t *testing.T) {
	// Setup
	srv := avatarServer(t, "text/html", "<html>", http.StatusOK)
	store := NewAvatarStore(new(MockObjectStorage), "media")

	// Execute
	_, err := store.MirrorAvatar(context.Background(), uuid.New(), srv.URL)

	// Assert
	require.Error(t, err)
	assert.Equal(t, map[string]string{"content_type": "text/html"}, apperrors.GetAppError(err).Details)
}

func TestMirrorAvatar_RejectsNonHTTPSource(t *testing.T) {
	// Setup
	mockStorage := new(MockObjectStorage)
	store := NewAvatarStore(mockStorage, "media")

	// Execute
	_, err := store.MirrorAvatar(context.Background(), uuid.New(), "file:///etc/passwd")

	// Assert
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	mockStorage.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
