package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/events"
	"github.com/phrazzld/proverd/internal/store"
)

// Submission outcomes reported to Metrics.
const (
	SubmissionAccepted = "accepted"
	SubmissionRejected = "rejected"
)

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers execute tasks
	WorkerCount int

	// QueueSize is the admission ceiling of the work queue
	QueueSize int

	// OutputDir is the parent of the per-task prover output directories
	OutputDir string
}

// TaskRunner admits, executes, and recovers proving tasks.
type TaskRunner struct {
	store    store.TaskStore
	queue    *TaskQueue
	pool     *WorkerPool
	prover   Prover
	registry ProverRegistry
	emitter  events.EventEmitter
	metrics  *Metrics
	config   TaskRunnerConfig
	logger   *slog.Logger

	// admitMu serializes the ceiling check, record creation, and enqueue of
	// concurrent submissions.
	admitMu sync.Mutex

	// kill signals a running prover process.
	kill func(pid int) error

	mu      sync.Mutex
	started bool
	stopped bool
}

// Option customizes a TaskRunner.
type Option func(*TaskRunner)

// WithEmitter publishes lifecycle events through emitter.
func WithEmitter(emitter events.EventEmitter) Option {
	return func(r *TaskRunner) {
		r.emitter = emitter
	}
}

// WithMetrics records admission and recovery counts on m.
func WithMetrics(m *Metrics) Option {
	return func(r *TaskRunner) {
		r.metrics = m
	}
}

// NewTaskRunner creates a new TaskRunner. The queue accepts submissions
// immediately; workers begin only after Start.
func NewTaskRunner(
	taskStore store.TaskStore,
	prover Prover,
	registry ProverRegistry,
	config TaskRunnerConfig,
	logger *slog.Logger,
	opts ...Option,
) *TaskRunner {
	logger = logger.With("component", "task_runner")
	r := &TaskRunner{
		store:    taskStore,
		queue:    NewTaskQueue(config.QueueSize, logger),
		prover:   prover,
		registry: registry,
		config:   config,
		logger:   logger,
		kill:     terminateProcess,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pool = NewWorkerPool(r.queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, r.processTask, logger)
	return r
}

// Queue exposes the work queue for inspection.
func (r *TaskRunner) Queue() *TaskQueue {
	return r.queue
}

// Submit admits a new queued task. It fails with ErrQueueFull, leaving no
// record behind, when the queue is at its ceiling.
func (r *TaskRunner) Submit(ctx context.Context, task *domain.Task) error {
	r.admitMu.Lock()
	defer r.admitMu.Unlock()

	if r.queue.Len() >= r.queue.Capacity() {
		r.metrics.RecordSubmission(SubmissionRejected)
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, r.queue.Capacity())
	}

	if err := r.store.Create(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	if err := r.queue.Enqueue(DescriptorFor(task)); err != nil {
		if delErr := r.store.Delete(context.WithoutCancel(ctx), task.ID); delErr != nil {
			r.logger.Error("failed to remove task after enqueue failure",
				"task_id", task.ID,
				"error", delErr)
		}
		r.metrics.RecordSubmission(SubmissionRejected)
		return err
	}

	r.metrics.RecordSubmission(SubmissionAccepted)
	r.logger.Info("task submitted",
		"task_id", task.ID,
		"prover", task.Prover,
		"queue_len", r.queue.Len())
	return nil
}

// Start recovers unfinished tasks and launches the workers.
func (r *TaskRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return errors.New("task runner already started")
	}
	if err := r.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}
	r.pool.Start()
	r.started = true
	return nil
}

// Stop kills in-flight provers, waits for the workers, and closes the queue.
// Interrupted tasks stay running on disk and are requeued by the next Recover.
func (r *TaskRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	r.stopped = true
	r.pool.Stop()
	r.queue.Close()
}

// Recover loads the store and requeues unfinished work in store order.
// Running records were interrupted, so they move back to queued first.
func (r *TaskRunner) Recover(ctx context.Context) error {
	if err := r.store.Load(ctx); err != nil {
		return err
	}

	tasks, err := r.store.List(ctx, "")
	if err != nil {
		return err
	}

	// submissions accepted before Start are already queued
	queued := make(map[string]bool)
	for _, id := range r.queue.TaskIDs() {
		queued[id] = true
	}

	var requeued, reset int
	for _, t := range tasks {
		if queued[t.ID] {
			continue
		}
		switch t.Status {
		case domain.TaskStatusRunning:
			updated, err := r.store.Update(ctx, t.ID, func(task *domain.Task) error {
				return task.TransitionTo(domain.TaskStatusQueued)
			})
			if err != nil {
				r.logger.Error("failed to reset interrupted task, skipping",
					"task_id", t.ID,
					"error", err)
				continue
			}
			t = updated
			reset++
		case domain.TaskStatusQueued:
		default:
			continue
		}

		if err := r.queue.Restore(DescriptorFor(t)); err != nil {
			return fmt.Errorf("failed to requeue task %s: %w", t.ID, err)
		}
		requeued++
	}

	r.metrics.RecordRecovered(requeued)
	r.logger.Info("recovered unfinished tasks",
		"requeued_count", requeued,
		"reset_running_count", reset,
		"queue_len", r.queue.Len())
	return nil
}

// Pause takes a queued task out of the queue and marks it paused.
//
// A task that a worker has already dequeued is no longer in the queue, so
// Pause reports it as not found even if the worker has not yet marked it
// running. That window is accepted.
func (r *TaskRunner) Pause(ctx context.Context, id string) error {
	d, ok := r.queue.Remove(id)
	if !ok {
		return fmt.Errorf("%w: %s is not queued", store.ErrTaskNotFound, id)
	}

	if _, err := r.store.Update(ctx, id, func(task *domain.Task) error {
		return task.TransitionTo(domain.TaskStatusPaused)
	}); err != nil {
		if !store.IsNotFoundError(err) {
			// put it back so memory keeps matching the queued record on disk
			if restoreErr := r.queue.Restore(d); restoreErr != nil {
				r.logger.Error("failed to requeue task after pause failure",
					"task_id", id,
					"error", restoreErr)
			}
		}
		return err
	}

	r.logger.Info("task paused", "task_id", id)
	return nil
}

// Delete removes a task record. A running prover is sent SIGTERM first;
// failing to signal it is not an error. A descriptor still in the queue is
// discarded when a worker picks it up.
func (r *TaskRunner) Delete(ctx context.Context, id string) error {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if t.Status == domain.TaskStatusRunning && t.PID > 0 {
		if err := r.kill(t.PID); err != nil {
			r.logger.Debug("failed to terminate prover process",
				"task_id", id,
				"pid", t.PID,
				"error", err)
		}
	}

	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.Info("task deleted", "task_id", id, "status", t.Status)
	return nil
}

// processTask executes one descriptor. ctx is cancelled on shutdown.
func (r *TaskRunner) processTask(ctx context.Context, d Descriptor) error {
	logger := r.logger.With("task_id", d.TaskID, "prover", d.Prover)
	storeCtx := context.WithoutCancel(ctx)

	t, err := r.store.Get(storeCtx, d.TaskID)
	if store.IsNotFoundError(err) {
		logger.Debug("discarding descriptor of deleted task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load task: %w", err)
	}
	if t.Status != domain.TaskStatusQueued {
		logger.Debug("discarding descriptor of task that is no longer queued", "status", t.Status)
		return nil
	}

	if _, err := r.store.Update(storeCtx, d.TaskID, func(task *domain.Task) error {
		return task.TransitionTo(domain.TaskStatusRunning)
	}); err != nil {
		return fmt.Errorf("failed to mark task running: %w", err)
	}

	logger.Info("executing task")
	start := time.Now()
	outcome, execErr := r.execute(ctx, t, func(pid int) {
		if _, err := r.store.Update(storeCtx, d.TaskID, func(task *domain.Task) error {
			task.PID = pid
			return nil
		}); err != nil {
			logger.Error("failed to record prover pid", "pid", pid, "error", err)
		}
	})
	elapsed := time.Since(start)

	// A prover that finished before noticing shutdown still gets its outcome recorded.
	if execErr != nil && ctx.Err() != nil {
		logger.Warn("execution interrupted by shutdown, leaving task for recovery",
			"elapsed", domain.FormatElapsed(elapsed))
		return nil
	}

	finish := func(task *domain.Task) error {
		return task.Finish(outcome.Output, outcome.ProofFixture, elapsed, execErr)
	}
	finished, err := r.store.Update(storeCtx, d.TaskID, finish)
	if errors.Is(err, store.ErrPersistence) {
		logger.Error("failed to persist task outcome, retrying", "error", err)
		finished, err = r.store.Update(storeCtx, d.TaskID, finish)
	}
	if store.IsNotFoundError(err) {
		logger.Info("task deleted during execution")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to record task outcome: %w", err)
	}

	if execErr != nil {
		logger.Warn("task failed", "error", execErr, "elapsed", finished.Elapsed)
	} else {
		logger.Info("task completed", "elapsed", finished.Elapsed)
	}

	r.emitCompleted(storeCtx, finished)
	return nil
}

// execute resolves the prover kind and runs it, turning a panic into an
// execution error so the task still reaches a terminal status.
func (r *TaskRunner) execute(ctx context.Context, t *domain.Task, onStart func(pid int)) (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("recovered from prover panic", "task_id", t.ID, "panic", p)
			outcome = Outcome{}
			err = fmt.Errorf("%w: panic: %v", ErrExecution, p)
		}
	}()

	spec, err := r.registry.Lookup(t.Prover)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrExecution, err)
	}

	return r.prover.Run(ctx, Invocation{
		Binary:      spec.Binary,
		Args:        spec.Args,
		Env:         t.Env,
		ProgramPath: t.ProgramPath,
		InputPath:   t.InputPath,
		OutputDir:   filepath.Join(r.config.OutputDir, t.ID),
		Timeout:     spec.Timeout,
	}, onStart)
}

func (r *TaskRunner) emitCompleted(ctx context.Context, t *domain.Task) {
	if r.emitter == nil {
		return
	}
	event, err := events.NewTaskEvent(events.TypeTaskCompleted, t.ID, t)
	if err != nil {
		r.logger.Error("failed to build completion event", "task_id", t.ID, "error", err)
		return
	}
	if err := r.emitter.EmitEvent(ctx, event); err != nil {
		r.logger.Warn("completion event handler failed", "task_id", t.ID, "error", err)
	}
}

func terminateProcess(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(syscall.SIGTERM)
}
