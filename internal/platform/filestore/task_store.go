package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"sync"

	"github.com/phrazzld/proverd/internal/domain"
	"github.com/phrazzld/proverd/internal/store"
)

// TaskStore implements the store.TaskStore interface with a single JSON
// document keyed by task ID.
//
// Every operation runs under one mutex: the read-modify-persist cycle of one
// caller completes before the next begins, so concurrent updates to different
// tasks never see or persist each other's partial state.
type TaskStore struct {
	path   string
	policy WritePolicy
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*domain.Task
	order []string

	write writeFunc
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates an empty TaskStore persisted at path.
// Call Load to read an existing document.
func NewTaskStore(path string, policy WritePolicy, logger *slog.Logger) *TaskStore {
	return &TaskStore{
		path:   path,
		policy: policy,
		logger: logger.With("component", "task_store"),
		tasks:  make(map[string]*domain.Task),
		order:  make([]string, 0),
		write:  writeFileAtomic,
	}
}

// Path returns the location of the task document.
func (s *TaskStore) Path() string {
	return s.path
}

// Load replaces the in-memory state with the persisted document.
func (s *TaskStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.tasks = make(map[string]*domain.Task)
		s.order = make([]string, 0)
		s.logger.Info("no task document found, starting empty", "path", s.path)
		return nil
	}
	if err != nil {
		return store.NewStoreError("task", "load", "failed to read task document", err)
	}

	order, tasks, err := decodeDocument[*domain.Task](data)
	if err != nil {
		return store.NewStoreError("task", "load", "failed to decode task document", err)
	}
	for _, id := range order {
		if tasks[id] == nil {
			return store.NewStoreError("task", "load", "null record for "+id, store.ErrInvalidEntity)
		}
		// the key is authoritative for identity
		tasks[id].ID = id
		if tasks[id].Env == nil {
			tasks[id].Env = map[string]string{}
		}
	}

	s.tasks = tasks
	s.order = order
	s.logger.Debug("task document loaded", "path", s.path, "task_count", len(order))
	return nil
}

// Create saves a new task.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; exists {
		return store.ErrTaskExists
	}

	s.tasks[task.ID] = task.Clone()
	s.order = append(s.order, task.ID)

	if err := s.persistLocked(ctx); err != nil {
		delete(s.tasks, task.ID)
		s.order = s.order[:len(s.order)-1]
		return store.NewStoreError("task", "create", "failed to persist task "+task.ID, err)
	}
	return nil
}

// Get returns a copy of the task with the given ID.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task.Clone(), nil
}

// Update applies mutate to a copy of the task and commits the copy only
// after the whole document has been written.
func (s *TaskStore) Update(ctx context.Context, id string, mutate store.TaskMutator) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := checkImmutable(current, next); err != nil {
		return nil, err
	}

	s.tasks[id] = next
	if err := s.persistLocked(ctx); err != nil {
		s.tasks[id] = current
		return nil, store.NewStoreError("task", "update", "failed to persist task "+id, err)
	}
	return next.Clone(), nil
}

// Delete removes a task and persists the store.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}

	index := indexOf(s.order, id)
	previousOrder := s.order
	s.order = make([]string, 0, len(previousOrder)-1)
	s.order = append(s.order, previousOrder[:index]...)
	s.order = append(s.order, previousOrder[index+1:]...)
	delete(s.tasks, id)

	if err := s.persistLocked(ctx); err != nil {
		s.tasks[id] = task
		s.order = previousOrder
		return store.NewStoreError("task", "delete", "failed to persist removal of task "+id, err)
	}
	return nil
}

// List returns copies of the tasks in store order, optionally filtered by status.
func (s *TaskStore) List(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := make([]*domain.Task, 0, len(s.order))
	for _, id := range s.order {
		task := s.tasks[id]
		if status != "" && task.Status != status {
			continue
		}
		tasks = append(tasks, task.Clone())
	}
	return tasks, nil
}

// persistLocked writes the current state. The caller must hold s.mu.
func (s *TaskStore) persistLocked(ctx context.Context) error {
	data, err := encodeDocument(s.order, s.tasks)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	if err := writeWithRetry(ctx, s.policy, s.write, s.path, data); err != nil {
		s.logger.Error("failed to write task document",
			"path", s.path,
			"attempts", s.policy.Attempts,
			"error", err)
		return fmt.Errorf("%w: %v", store.ErrPersistence, err)
	}
	return nil
}

// checkImmutable rejects updates that change fields fixed at submission.
func checkImmutable(before, after *domain.Task) error {
	switch {
	case after.ID != before.ID,
		after.ProgramID != before.ProgramID,
		after.ProgramPath != before.ProgramPath,
		after.InputPath != before.InputPath,
		after.Prover != before.Prover,
		after.Callback != before.Callback,
		!maps.Equal(after.Env, before.Env),
		!after.SubmittedAt.Equal(before.SubmittedAt):
		return fmt.Errorf("%w: immutable task field changed", store.ErrInvalidEntity)
	}
	return nil
}

func indexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}
