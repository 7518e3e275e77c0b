// Package resilience provides a circuit breaker and a retry helper for calls
// to external services.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ringring-backend/pkg/logger"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState string

const (
	CircuitBreakerClosed   CircuitBreakerState = "closed"
	CircuitBreakerHalfOpen CircuitBreakerState = "half_open"
	CircuitBreakerOpen     CircuitBreakerState = "open"
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker opens after MaxFailures consecutive failures and lets a
// single trial call through once Cooldown has passed
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu                  sync.Mutex
	state               CircuitBreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(name string, maxFailures int, cooldown time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		state:       CircuitBreakerClosed,
	}
}

// Execute runs fn unless the breaker is open
func (b *CircuitBreaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if err := b.before(); err != nil {
		logger.Warn("Circuit breaker rejected call",
			zap.String("breaker", b.name),
			zap.String("operation", operation))
		return fmt.Errorf("%s %s: %w", b.name, operation, err)
	}

	err := fn(ctx)
	b.after(operation, err)
	return err
}

func (b *CircuitBreaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitBreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = CircuitBreakerHalfOpen
		b.trialInFlight = true
		return nil
	case CircuitBreakerHalfOpen:
		if b.trialInFlight {
			return ErrCircuitOpen
		}
		b.trialInFlight = true
	}
	return nil
}

func (b *CircuitBreaker) after(operation string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	if err == nil {
		if b.state != CircuitBreakerClosed {
			logger.Info("Circuit breaker closed",
				zap.String("breaker", b.name),
				zap.String("operation", operation))
		}
		b.state = CircuitBreakerClosed
		b.consecutiveFailures = 0
		return
	}

	b.consecutiveFailures++
	if b.state == CircuitBreakerHalfOpen || b.consecutiveFailures >= b.maxFailures {
		if b.state != CircuitBreakerOpen {
			logger.Error("Circuit breaker opened",
				zap.String("breaker", b.name),
				zap.String("operation", operation),
				zap.Int("consecutive_failures", b.consecutiveFailures),
				zap.Error(err))
		}
		b.state = CircuitBreakerOpen
		b.openedAt = b.now()
	}
}

// State returns the current state
func (b *CircuitBreaker) State() CircuitBreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Retry calls fn up to attempts times with linear backoff starting at
// interval. It stops early when ctx is done.
func Retry(ctx context.Context, operation string, attempts int, interval time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = fn(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		backoff := time.Duration(attempt) * interval
		logger.Warn("Operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(lastErr))

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}
