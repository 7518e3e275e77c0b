package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	"ringring-backend/pkg/constants"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/metrics"
)

// Ledger is the write side of the call ledger
type Ledger interface {
	CreateCall(ctx context.Context, call *domain.Call) (uuid.UUID, error)
	CloseCall(ctx context.Context, callID uuid.UUID, endTime time.Time, duration int, status domain.CallStatus) error
}

// Journal receives an append-only copy of every ledger transition
type Journal interface {
	Append(ctx context.Context, event *domain.CallEvent) error
}

// Closure is the terminal outcome of one call
type Closure struct {
	RecordID   uuid.UUID
	CallID     string
	CallerID   string
	ReceiverID string
	CallType   domain.CallType
	Status     domain.CallStatus
	EndTime    time.Time
	Duration   int
}

var (
	// ErrRecorderStopped is returned for writes submitted after Stop
	ErrRecorderStopped = errors.New("recorder stopped")
	// ErrRecorderFull is returned when maxQueue writes are already waiting
	ErrRecorderFull = errors.New("recorder queue full")
)

// Recorder serialises ledger writes on a single worker, so a close is never
// applied before the create it follows. Writes are fire-and-forget: failures
// are logged and counted.
type Recorder struct {
	ledger  Ledger
	journal Journal
	metrics *metrics.Metrics
	timeout time.Duration

	// queue is unbounded up to maxQueue; submit never blocks the caller
	mu       sync.Mutex
	stopped  bool
	queue    []func(context.Context)
	maxQueue int
	wake     chan struct{}
	done     chan struct{}
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithJournal mirrors every write into j
func WithJournal(j Journal) RecorderOption {
	return func(r *Recorder) { r.journal = j }
}

// WithMetrics counts writes and call outcomes in m
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithQueueSize sets the number of writes that may wait for the worker.
// Writes beyond it are dropped and counted.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) { r.maxQueue = n }
}

// WithWriteTimeout bounds a single ledger write
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.timeout = d }
}

// NewRecorder creates a recorder. Call Run to start the worker.
func NewRecorder(ledger Ledger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		ledger:  ledger,
		timeout:  constants.EffectTimeout,
		maxQueue: constants.LedgerQueueSize,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes writes until Stop is called and the queue is drained
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			stopped := r.stopped
			r.mu.Unlock()
			if stopped {
				return
			}
			<-r.wake
			continue
		}
		job := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.mu.Unlock()

		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		job(jobCtx)
		cancel()
	}
}

// Stop rejects new writes and waits for queued ones to finish
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.signal()
	<-r.done
}

// Pending reports how many writes wait for the worker
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

func (r *Recorder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Recorder) submit(op string, job func(context.Context)) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrRecorderStopped
	}
	if r.maxQueue > 0 && len(r.queue) >= r.maxQueue {
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.RecordLedgerDropped(op)
		}
		return ErrRecorderFull
	}
	r.queue = append(r.queue, job)
	r.mu.Unlock()
	r.signal()
	return nil
}

// Created queues the provisional record for a new call
func (r *Recorder) Created(callID string, record domain.Call) {
	err := r.submit("create", func(ctx context.Context) {
		rec := record
		_, err := r.ledger.CreateCall(ctx, &rec)
		r.recordWrite("create", err)
		if err != nil {
			logger.Error("Failed to create call record",
				zap.String("call_id", callID),
				zap.String("record_id", record.CallID.String()),
				zap.Error(err))
		}
		r.appendEvent(ctx, &domain.CallEvent{
			CallID:     callID,
			Kind:       domain.CallEventCreated,
			CallerID:   record.CallerID,
			ReceiverID: record.ReceiverID,
			Status:     record.Status,
			OccurredAt: record.StartedAt,
		})
	})
	if err != nil {
		logger.Warn("Dropped call record create", zap.String("call_id", callID), zap.Error(err))
	}
}

// Closed queues the terminal outcome of a call
func (r *Recorder) Closed(c Closure) {
	err := r.submit("close", func(ctx context.Context) {
		err := r.ledger.CloseCall(ctx, c.RecordID, c.EndTime, c.Duration, c.Status)
		r.recordWrite("close", err)
		if err != nil {
			logger.Error("Failed to close call record",
				zap.String("call_id", c.CallID),
				zap.String("record_id", c.RecordID.String()),
				zap.String("status", string(c.Status)),
				zap.Error(err))
		}
		r.recordOutcome(c)
		r.appendEvent(ctx, &domain.CallEvent{
			CallID:     c.CallID,
			Kind:       domain.CallEventClosed,
			CallerID:   c.CallerID,
			ReceiverID: c.ReceiverID,
			Status:     c.Status,
			Duration:   c.Duration,
			OccurredAt: c.EndTime,
		})
	})
	if err != nil {
		logger.Warn("Dropped call record close", zap.String("call_id", c.CallID), zap.Error(err))
	}
}

// OfflineAttempt journals a call placed to a receiver that was not connected.
// No ledger record exists for it.
func (r *Recorder) OfflineAttempt(callerID, receiverID string, at time.Time) {
	if r.journal == nil {
		return
	}
	err := r.submit("journal", func(ctx context.Context) {
		r.appendEvent(ctx, &domain.CallEvent{
			CallID:     callerID + "-" + receiverID,
			Kind:       domain.CallEventOfflineTarget,
			CallerID:   callerID,
			ReceiverID: receiverID,
			OccurredAt: at,
		})
	})
	if err != nil {
		logger.Warn("Dropped offline attempt event", zap.Error(err))
	}
}

func (r *Recorder) appendEvent(ctx context.Context, event *domain.CallEvent) {
	if r.journal == nil {
		return
	}
	if err := r.journal.Append(ctx, event); err != nil {
		logger.Warn("Failed to append call event",
			zap.String("call_id", event.CallID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err))
	}
}

func (r *Recorder) recordWrite(op string, err error) {
	if r.metrics != nil {
		r.metrics.RecordLedgerWrite(op, err)
	}
}

func (r *Recorder) recordOutcome(c Closure) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordCall(string(c.CallType), string(c.Status))
	if c.Status == domain.CallStatusCompleted {
		r.metrics.RecordCallDuration(string(c.CallType), time.Duration(c.Duration)*time.Second)
		return
	}
	r.metrics.RecordCallFailure(string(c.CallType), string(c.Status))
}
