package store

import (
	"context"

	"github.com/phrazzld/proverd/internal/domain"
)

// TaskMutator changes a task in place during TaskStore.Update.
// Returning an error aborts the update without writing anything.
type TaskMutator func(task *domain.Task) error

// TaskStore defines the interface for task record persistence.
// It is the single source of truth for task status.
type TaskStore interface {
	// Load replaces the in-memory state with the persisted document.
	// A missing document yields an empty store.
	Load(ctx context.Context) error

	// Create saves a new task.
	// Returns ErrTaskExists if a task with the same ID is already stored.
	Create(ctx context.Context, task *domain.Task) error

	// Get returns a copy of the task with the given ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Get(ctx context.Context, id string) (*domain.Task, error)

	// Update applies mutate to a copy of the task and persists the whole
	// store before committing the copy. The updated task is returned.
	// Returns ErrTaskNotFound if the task does not exist and ErrPersistence
	// if the durable write fails, in which case nothing changes.
	Update(ctx context.Context, id string, mutate TaskMutator) (*domain.Task, error)

	// Delete removes a task and persists the store.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id string) error

	// List returns copies of all tasks in store order, restricted to the
	// given status unless it is empty.
	List(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error)
}
