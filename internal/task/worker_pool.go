package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// HandlerFunc processes one dequeued descriptor. ctx is cancelled when the
// pool stops.
type HandlerFunc func(ctx context.Context, d Descriptor) error

// WorkerPool manages a pool of worker goroutines that process descriptors
// from a task queue. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	// taskQueue provides read access to the descriptors to be processed
	taskQueue TaskQueueReader

	// workerCount is the number of concurrent workers to start
	workerCount int

	// handler runs one descriptor
	handler HandlerFunc

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx context.Context

	// cancel is the function to call to cancel the context
	cancel context.CancelFunc

	logger *slog.Logger

	// errorHandler is called when a handler fails or panics
	// If nil, errors are only logged
	errorHandler func(d Descriptor, err error)

	startOnce sync.Once
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 1,
	}
}

// ErrHandlerPanic wraps a panic recovered from a handler.
var ErrHandlerPanic = errors.New("task handler panicked")

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(taskQueue TaskQueueReader, config WorkerPoolConfig, handler HandlerFunc, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		taskQueue:   taskQueue,
		workerCount: workerCount,
		handler:     handler,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "worker_pool"),
	}
}

// SetErrorHandler allows setting a custom error handler for handler failures
func (p *WorkerPool) SetErrorHandler(handler func(d Descriptor, err error)) {
	p.errorHandler = handler
}

// WorkerCount returns the number of workers the pool runs.
func (p *WorkerPool) WorkerCount() int {
	return p.workerCount
}

// Start launches the workers. Calling Start more than once has no effect.
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool", "worker_count", p.workerCount)
		for i := 0; i < p.workerCount; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Stop cancels the pool context and waits for every worker to return.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		d, err := p.taskQueue.Dequeue(p.ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || p.ctx.Err() != nil {
				p.logger.Debug("stopping worker", "worker_id", id)
				return
			}
			p.logger.Error("failed to dequeue task", "worker_id", id, "error", err)
			continue
		}

		if err := p.run(d); err != nil {
			p.logger.Error("task handler failed",
				"worker_id", id,
				"task_id", d.TaskID,
				"error", err)
			if p.errorHandler != nil {
				p.errorHandler(d, err)
			}
		}
	}
}

// run calls the handler and converts a panic into an error so the worker survives.
func (p *WorkerPool) run(d Descriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("recovered from task handler panic",
				"task_id", d.TaskID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return p.handler(p.ctx, d)
}
