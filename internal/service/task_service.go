package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/proverd/internal/domain"
)

// TaskRunner defines the runner operations the task service drives.
type TaskRunner interface {
	// Submit admits a queued task or fails with task.ErrQueueFull
	Submit(ctx context.Context, task *domain.Task) error
	// Pause removes a queued task from the queue and marks it paused
	Pause(ctx context.Context, id string) error
	// Delete removes a task, terminating its prover if it is running
	Delete(ctx context.Context, id string) error
}

// TaskReader provides read access to task records.
type TaskReader interface {
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error)
}

// InputWriter stores the input payload of a task.
type InputWriter interface {
	// WriteInput stores payload and returns the path handed to the prover
	WriteInput(ctx context.Context, taskID string, payload []byte) (string, error)
	// RemoveInput deletes the payload of a task that was not admitted
	RemoveInput(taskID string) error
}

// ProgramResolver looks up an uploaded program and the path of its binary.
type ProgramResolver interface {
	Resolve(ctx context.Context, id string) (*domain.Program, string, error)
}

// TaskService provides the task boundary operations.
type TaskService interface {
	// Submit validates the request, stores its payload, and admits a new task
	Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Task, error)

	// GetStatus returns the current record of a task
	GetStatus(ctx context.Context, id string) (*domain.Task, error)

	// ListTasks returns all tasks in submission order, optionally filtered by status
	ListTasks(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error)

	// DeleteTask removes a task
	DeleteTask(ctx context.Context, id string) error

	// PauseTask pauses a task that is still waiting in the queue
	PauseTask(ctx context.Context, id string) error
}

type taskServiceImpl struct {
	runner   TaskRunner
	tasks    TaskReader
	inputs   InputWriter
	programs ProgramResolver
	logger   *slog.Logger
}

var _ TaskService = (*taskServiceImpl)(nil)

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	runner TaskRunner,
	tasks TaskReader,
	inputs InputWriter,
	programs ProgramResolver,
	logger *slog.Logger,
) (TaskService, error) {
	if runner == nil {
		return nil, newCreateError("runner")
	}
	if tasks == nil {
		return nil, newCreateError("tasks")
	}
	if inputs == nil {
		return nil, newCreateError("inputs")
	}
	if programs == nil {
		return nil, newCreateError("programs")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		runner:   runner,
		tasks:    tasks,
		inputs:   inputs,
		programs: programs,
		logger:   logger.With("component", "task_service"),
	}, nil
}

func (s *taskServiceImpl) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	program, programPath, err := s.programs.Resolve(ctx, req.ProgramID)
	if err != nil {
		s.logger.Debug("program lookup failed", "program_id", req.ProgramID, "error", err)
		return nil, wrapError("task", "submit", "failed to resolve program", err)
	}

	id := uuid.NewString()
	inputPath, err := s.inputs.WriteInput(ctx, id, req.InputPayload)
	if err != nil {
		return nil, wrapError("task", "submit", "failed to store input payload", err)
	}

	t, err := domain.NewTask(id, program.ID, programPath, inputPath, program.Prover, req.Callback, req.Env)
	if err != nil {
		s.discardInput(id)
		return nil, err
	}

	if err := s.runner.Submit(ctx, t); err != nil {
		s.discardInput(id)
		s.logger.Warn("task not admitted",
			"task_id", id,
			"program_id", program.ID,
			"error", err)
		return nil, wrapError("task", "submit", "failed to admit task", err)
	}

	s.logger.Info("task accepted",
		"task_id", id,
		"program_id", program.ID,
		"prover", program.Prover)
	return t, nil
}

func (s *taskServiceImpl) discardInput(id string) {
	if err := s.inputs.RemoveInput(id); err != nil {
		s.logger.Warn("failed to remove input payload", "task_id", id, "error", err)
	}
}

func (s *taskServiceImpl) GetStatus(ctx context.Context, id string) (*domain.Task, error) {
	if id == "" {
		return nil, domain.NewValidationError("task_id", "is required", domain.ErrInvalidID)
	}
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, wrapError("task", "get_status", "failed to load task", err)
	}
	return t, nil
}

func (s *taskServiceImpl) ListTasks(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	if status != "" && !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTaskStatus, status)
	}
	tasks, err := s.tasks.List(ctx, status)
	if err != nil {
		return nil, wrapError("task", "list", "failed to list tasks", err)
	}
	return tasks, nil
}

func (s *taskServiceImpl) DeleteTask(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewValidationError("task_id", "is required", domain.ErrInvalidID)
	}
	if err := s.runner.Delete(ctx, id); err != nil {
		return wrapError("task", "delete", "failed to delete task", err)
	}
	return nil
}

func (s *taskServiceImpl) PauseTask(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewValidationError("task_id", "is required", domain.ErrInvalidID)
	}
	if err := s.runner.Pause(ctx, id); err != nil {
		return wrapError("task", "pause", "failed to pause task", err)
	}
	return nil
}

func newCreateError(dependency string) error {
	return &ServiceError{
		Service:   "task",
		Operation: "create_service",
		Message:   dependency + " cannot be nil",
	}
}
