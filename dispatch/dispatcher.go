// Package dispatch performs the background upload of flushed conversation
// batches to the memory gateway. Submitting never blocks the caller and no
// failure propagates back into request handling: outcomes are visible to
// operators through logs, metrics and registered observers only.
package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/internal/pool"
	"github.com/BaSui01/memflow/types"
)

// Gateway is the consumed interface of the remote memory service.
type Gateway interface {
	AddMessages(ctx context.Context, messages []types.Message, userID, conversationID string) types.Result
}

// Outcome classifies how one submitted upload ended.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeRejected Outcome = "rejected"
)

// UploadEvent is the completion record of one submitted batch.
type UploadEvent struct {
	ConversationID string        `json:"conversation_id"`
	UserID         string        `json:"user_id"`
	Turns          int           `json:"turns"`
	Rounds         int           `json:"rounds"`
	Outcome        Outcome       `json:"outcome"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
	Timestamp      time.Time     `json:"timestamp"`
}

// Config configures the dispatcher's worker pool.
type Config struct {
	Workers   int
	QueueSize int
}

// Dispatcher runs one upload per flush event on a bounded worker pool.
// The bound is deliberate: unbounded fire-and-forget goroutines would let a
// slow gateway exhaust the process under sustained load. When the queue is
// full the batch is dropped and logged, which stays within the pipeline's
// best-effort delivery contract.
type Dispatcher struct {
	gw     Gateway
	pool   *pool.WorkerPool
	logger *zap.Logger

	mu        sync.RWMutex
	observers []func(UploadEvent)
}

// NewDispatcher creates a dispatcher and starts its workers.
func NewDispatcher(gw Gateway, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "upload_dispatcher"))

	d := &Dispatcher{
		gw:     gw,
		logger: logger,
	}
	d.pool = pool.NewWorkerPool(pool.WorkerPoolConfig{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
		PanicHandler: func(r any) {
			logger.Error("upload task panicked", zap.Any("panic", r))
		},
	})
	return d
}

// AddObserver registers a completion observer. Observers are invoked after
// every submitted batch settles, including rejected ones.
func (d *Dispatcher) AddObserver(fn func(UploadEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, fn)
}

// Submit schedules the batch for background upload and returns immediately.
// The caller has already moved on: a failed or dropped upload is logged, not
// retried, not requeued, never surfaced to the end user.
func (d *Dispatcher) Submit(batch []types.Message, userID, conversationID string) {
	if len(batch) == 0 {
		return
	}

	submitted := time.Now()
	err := d.pool.Submit(func(ctx context.Context) error {
		d.upload(ctx, batch, userID, conversationID, submitted)
		return nil
	})
	if err != nil {
		d.logger.Warn("upload dropped, worker pool saturated",
			zap.String("conversation_id", conversationID),
			zap.String("user_id", userID),
			zap.Int("turns", len(batch)),
			zap.Error(err))
		d.notify(UploadEvent{
			ConversationID: conversationID,
			UserID:         userID,
			Turns:          len(batch),
			Rounds:         len(batch) / 2,
			Outcome:        OutcomeRejected,
			Error:          err.Error(),
			Timestamp:      time.Now(),
		})
	}
}

// upload is the scheduled work. Every failure path is caught here; nothing
// escapes to crash the host process or vanish unobserved.
func (d *Dispatcher) upload(ctx context.Context, batch []types.Message, userID, conversationID string, submitted time.Time) {
	event := UploadEvent{
		ConversationID: conversationID,
		UserID:         userID,
		Turns:          len(batch),
		Rounds:         len(batch) / 2,
	}

	defer func() {
		if r := recover(); r != nil {
			event.Outcome = OutcomeFailure
			event.Error = "panic during upload"
			event.Duration = time.Since(submitted)
			event.Timestamp = time.Now()
			d.logger.Error("upload panicked",
				zap.String("conversation_id", conversationID),
				zap.Any("panic", r))
			d.notify(event)
		}
	}()

	result := d.gw.AddMessages(ctx, batch, userID, conversationID)
	event.Duration = time.Since(submitted)
	event.Timestamp = time.Now()

	if result.Success() {
		event.Outcome = OutcomeSuccess
		d.logger.Info("conversation batch uploaded",
			zap.String("user_id", userID),
			zap.String("conversation_id", conversationID),
			zap.Int("rounds", event.Rounds),
			zap.Duration("duration", event.Duration))
	} else {
		event.Outcome = OutcomeFailure
		event.Error = result.Err().Error()
		d.logger.Error("conversation batch upload failed",
			zap.String("user_id", userID),
			zap.String("conversation_id", conversationID),
			zap.Int("rounds", event.Rounds),
			zap.Error(result.Err()))
	}

	d.notify(event)
}

// notify fans the event out to observers. A misbehaving observer must not
// take the pipeline down with it.
func (d *Dispatcher) notify(event UploadEvent) {
	d.mu.RLock()
	observers := d.observers
	d.mu.RUnlock()

	for _, fn := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("upload observer panicked", zap.Any("panic", r))
				}
			}()
			fn(event)
		}()
	}
}

// Stats returns the underlying worker pool statistics.
func (d *Dispatcher) Stats() pool.WorkerPoolStats {
	return d.pool.Stats()
}

// Close stops accepting uploads and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.pool.Close()
}
