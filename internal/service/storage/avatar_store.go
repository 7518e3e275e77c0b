package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"ringring-backend/pkg/config"
	"ringring-backend/pkg/constants"
	apperrors "ringring-backend/pkg/errors"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/resilience"
)

// ObjectStorage is the subset of the MinIO client the avatar store uses
type ObjectStorage interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

var avatarExtensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// AvatarStore resolves avatar object keys into short-lived presigned URLs.
// Calls to MinIO go through a circuit breaker so a storage outage degrades
// avatars to nil instead of stalling history and profile lookups.
type AvatarStore struct {
	storage ObjectStorage
	bucket  string
	expiry  time.Duration
	timeout time.Duration
	breaker *resilience.CircuitBreaker

	httpClient *http.Client
	maxBytes   int64
}

// NewAvatarStore creates an avatar store over an existing object storage client
func NewAvatarStore(storage ObjectStorage, bucket string) *AvatarStore {
	return &AvatarStore{
		storage: storage,
		bucket:  bucket,
		expiry:  constants.PresignedURLExpiry,
		timeout: constants.EffectTimeout,
		breaker: resilience.NewCircuitBreaker("minio", 5, 30*time.Second),

		httpClient: &http.Client{Timeout: constants.EffectTimeout},
		maxBytes:   constants.MaxAvatarBytes,
	}
}

// NewMinioAvatarStore connects to MinIO using cfg
func NewMinioAvatarStore(cfg config.MinIOConfig) (*AvatarStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return NewAvatarStore(client, cfg.Bucket), nil
}

// EnsureBucket creates the avatar bucket when it does not exist yet
func (s *AvatarStore) EnsureBucket(ctx context.Context) error {
	return s.breaker.Execute(ctx, "ensure_bucket", func(ctx context.Context) error {
		exists, err := s.storage.BucketExists(ctx, s.bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket: %w", err)
		}
		if exists {
			return nil
		}
		if err := s.storage.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		logger.Info("Created avatar bucket", zap.String("bucket", s.bucket))
		return nil
	})
}

// PresignAvatar returns a presigned GET URL for the avatar object key
func (s *AvatarStore) PresignAvatar(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var signed *url.URL
	err := s.breaker.Execute(ctx, "presign_avatar", func(ctx context.Context) error {
		var err error
		signed, err = s.storage.PresignedGetObject(ctx, s.bucket, key, s.expiry, nil)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign avatar %s: %w", key, err)
	}
	return signed.String(), nil
}

// MirrorAvatar copies the image at srcURL into the bucket as
// avatars/<userID>.<ext> and returns the object key
func (s *AvatarStore) MirrorAvatar(ctx context.Context, userID uuid.UUID, srcURL string) (string, error) {
	if !isAbsoluteURL(srcURL) {
		return "", apperrors.InvalidInputError("Avatar source must be an http(s) URL")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, contentType, err := s.fetch(ctx, srcURL)
	if err != nil {
		return "", apperrors.StorageError(err)
	}
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return "", apperrors.InvalidInputError("Unsupported avatar type").
			WithDetails(map[string]string{"content_type": contentType})
	}

	key := fmt.Sprintf("avatars/%s.%s", userID, ext)
	err = s.breaker.Execute(ctx, "put_avatar", func(ctx context.Context) error {
		_, err := s.storage.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		return err
	})
	if err != nil {
		return "", apperrors.StorageError(fmt.Errorf("failed to store avatar %s: %w", key, err))
	}

	logger.Debug("Avatar mirrored",
		zap.String("user_id", userID.String()),
		zap.String("key", key),
		zap.Int("bytes", len(data)))
	return key, nil
}

func (s *AvatarStore) fetch(ctx context.Context, srcURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build avatar request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download avatar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("avatar download returned %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read avatar: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, "", fmt.Errorf("avatar exceeds %d bytes", s.maxBytes)
	}

	contentType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// ResolveAvatar passes absolute URLs through and presigns object keys.
// A failed presign resolves to nil.
func (s *AvatarStore) ResolveAvatar(ctx context.Context, ref *string) *string {
	if ref == nil || *ref == "" {
		return nil
	}
	if isAbsoluteURL(*ref) {
		return ref
	}

	signed, err := s.PresignAvatar(ctx, *ref)
	if err != nil {
		logger.Warn("Avatar unavailable", zap.String("key", *ref), zap.Error(err))
		return nil
	}
	return &signed
}

func isAbsoluteURL(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}
