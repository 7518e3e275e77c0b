package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func passing(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	// Setup
	b := NewCircuitBreaker("minio", 3, time.Minute)
	ctx := context.Background()

	// Execute
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, "presign", failing), errBoom)
	}
	called := false
	err := b.Execute(ctx, "presign", func(context.Context) error { called = true; return nil })

	// Assert
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, CircuitBreakerOpen, b.State())
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	b := NewCircuitBreaker("minio", 2, time.Minute)
	ctx := context.Background()

	_ = b.Execute(ctx, "op", failing)
	require.NoError(t, b.Execute(ctx, "op", passing))
	_ = b.Execute(ctx, "op", failing)

	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestCircuitBreaker_HalfOpenTrial(t *testing.T) {
	// Setup
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewCircuitBreaker("minio", 1, 10*time.Second)
	b.now = func() time.Time { return now }
	ctx := context.Background()
	_ = b.Execute(ctx, "op", failing)
	require.Equal(t, CircuitBreakerOpen, b.State())

	// Execute: a failed trial reopens
	now = now.Add(11 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, "op", failing), errBoom)
	assert.Equal(t, CircuitBreakerOpen, b.State())

	// Execute: a successful trial closes
	now = now.Add(11 * time.Second)
	require.NoError(t, b.Execute(ctx, "op", passing))

	// Assert
	assert.Equal(t, CircuitBreakerClosed, b.State())
}

func TestRetry(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "connect", 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "connect", 2, time.Millisecond, func(context.Context) error {
		calls++
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 2, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, "connect", 5, time.Hour, failing)

	assert.ErrorIs(t, err, context.Canceled)
}
