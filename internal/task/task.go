package task

import (
	"context"
	"maps"

	"github.com/phrazzld/proverd/internal/domain"
)

// Descriptor is the queued representation of a task: its identifier plus the
// parameters a worker needs to dispatch it.
type Descriptor struct {
	TaskID   string
	Prover   string
	Callback string
	Env      map[string]string
}

// DescriptorFor builds the descriptor of a task record.
func DescriptorFor(t *domain.Task) Descriptor {
	return Descriptor{
		TaskID:   t.ID,
		Prover:   t.Prover,
		Callback: t.Callback,
		Env:      maps.Clone(t.Env),
	}
}

// TaskQueueReader provides the consuming side of the queue to workers.
type TaskQueueReader interface {
	// Dequeue blocks until a descriptor is available, the queue is closed,
	// or ctx is done.
	Dequeue(ctx context.Context) (Descriptor, error)
}
