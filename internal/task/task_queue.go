package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the TaskQueue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskQueue is a bounded FIFO of descriptors that supports removal by task ID.
//
// ready is a one-slot signal: every append does a non-blocking send, and a
// consumer that pops an item re-signals while items remain, so no waiting
// consumer misses work even when several appends coalesce into one signal.
type TaskQueue struct {
	mu       sync.Mutex
	items    []Descriptor
	capacity int
	closed   bool

	ready  chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

var _ TaskQueueReader = (*TaskQueue)(nil)

// NewTaskQueue creates a queue that admits at most capacity descriptors.
// A capacity below one is raised to one.
func NewTaskQueue(capacity int, logger *slog.Logger) *TaskQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &TaskQueue{
		items:    make([]Descriptor, 0, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		logger:   logger.With("component", "task_queue"),
	}
}

// Enqueue appends a descriptor.
// Returns an error if the queue is full or closed.
func (q *TaskQueue) Enqueue(d Descriptor) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, q.capacity)
	}
	q.items = append(q.items, d)
	depth := len(q.items)
	q.mu.Unlock()

	q.signal()
	q.logger.Debug("task enqueued",
		"task_id", d.TaskID,
		"prover", d.Prover,
		"queue_len", depth,
		"queue_cap", q.capacity)
	return nil
}

// Restore appends a descriptor without checking the ceiling. It is reserved
// for startup recovery, which must not drop work that was already accepted.
func (q *TaskQueue) Restore(d Descriptor) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, d)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Dequeue removes and returns the oldest descriptor, blocking until one is
// available. It returns ErrQueueClosed once the queue is closed and ctx.Err()
// when ctx is done.
func (q *TaskQueue) Dequeue(ctx context.Context) (Descriptor, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Descriptor{}, ErrQueueClosed
		}
		if len(q.items) > 0 {
			d := q.items[0]
			q.items[0] = Descriptor{}
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()

			if remaining > 0 {
				q.signal()
			}
			return d, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Descriptor{}, ctx.Err()
		case <-q.done:
		case <-q.ready:
		}
	}
}

// Remove deletes the descriptor of the given task, preserving the order of
// all others. It reports false when no queued descriptor has that ID.
func (q *TaskQueue) Remove(taskID string) (Descriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, d := range q.items {
		if d.TaskID != taskID {
			continue
		}
		q.items = append(q.items[:i], q.items[i+1:]...)
		return d, true
	}
	return Descriptor{}, false
}

// Len returns the current queue depth.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the admission ceiling.
func (q *TaskQueue) Capacity() int {
	return q.capacity
}

// TaskIDs returns the queued task IDs in dequeue order.
func (q *TaskQueue) TaskIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, 0, len(q.items))
	for _, d := range q.items {
		ids = append(ids, d.TaskID)
	}
	return ids
}

// Close wakes every consumer and rejects further appends. Descriptors still
// queued are dropped; their records remain queued in the store.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
	q.logger.Info("task queue closed", "dropped", len(q.items))
}

func (q *TaskQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
