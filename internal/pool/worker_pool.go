// Package pool provides a fixed-size goroutine pool for background uploads.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool queue is full")
)

// Task represents a unit of background work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of worker goroutines with a
// bounded queue. It puts an upper bound on concurrently in-flight work so a
// slow downstream cannot accumulate goroutines without limit.
type WorkerPool struct {
	taskQueue chan Task
	closed    atomic.Bool
	wg        sync.WaitGroup

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	panicked  atomic.Int64

	panicHandler func(any)
}

// WorkerPoolConfig configures the pool.
type WorkerPoolConfig struct {
	Workers      int       `json:"workers"`
	QueueSize    int       `json:"queue_size"`
	PanicHandler func(any) `json:"-"`
}

// DefaultWorkerPoolConfig returns sensible defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:   8,
		QueueSize: 256,
	}
}

// NewWorkerPool creates the pool and starts its workers.
func NewWorkerPool(config WorkerPoolConfig) *WorkerPool {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}

	p := &WorkerPool{
		taskQueue:    make(chan Task, config.QueueSize),
		panicHandler: config.PanicHandler,
	}

	p.wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a task without blocking. It returns ErrPoolFull when the
// queue is at capacity and ErrPoolClosed after Close.
func (p *WorkerPool) Submit(task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.taskQueue <- task:
		p.submitted.Add(1)
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.taskQueue {
		if err := p.executeTask(task); err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *WorkerPool) executeTask(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = errors.New("task panicked")
		}
	}()

	return task(context.Background())
}

// Close stops accepting tasks and waits for queued work to finish.
func (p *WorkerPool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.taskQueue)
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// WorkerPoolStats contains pool statistics.
type WorkerPoolStats struct {
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	Panicked  int64 `json:"panicked"`
}
