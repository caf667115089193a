package domain

import (
	"fmt"
	"time"
)

// TaskStatus represents the lifecycle state of a proving task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusPaused  TaskStatus = "paused"
	TaskStatusDone    TaskStatus = "done"
	TaskStatusError   TaskStatus = "error"
)

// EmptyProofFixture is the artifact value of a task whose prover has not
// produced a proof_fixture.json.
const EmptyProofFixture = "{}"

// IsValid reports whether s is one of the known statuses.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusPaused, TaskStatusDone, TaskStatusError:
		return true
	}
	return false
}

// IsTerminal reports whether a task in this status is never picked up by a
// worker again without an explicit resubmission.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusError || s == TaskStatusPaused
}

// transitions lists the allowed status changes. running -> queued is only
// taken by startup recovery.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusQueued:  {TaskStatusRunning, TaskStatusPaused},
	TaskStatusRunning: {TaskStatusDone, TaskStatusError, TaskStatusQueued},
}

// CanTransition reports whether a task may move from one status to another.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is one proving request: a program, an input payload written at
// submission, and the prover that executes them.
type Task struct {
	ID           string            `json:"id"`
	Status       TaskStatus        `json:"status"`
	ProgramID    string            `json:"program_id"`
	ProgramPath  string            `json:"program_path"`
	InputPath    string            `json:"input_file"`
	Prover       string            `json:"prover"`
	Callback     string            `json:"callback,omitempty"`
	Env          map[string]string `json:"env"`
	PID          int               `json:"pid,omitempty"`
	Result       *string           `json:"result"`
	ProofFixture string            `json:"proof_fixture"`
	Elapsed      string            `json:"elapsed,omitempty"`
	SubmittedAt  time.Time         `json:"submitted_at"`
}

// NewTask creates a queued task with an empty artifact.
// Returns an error if validation fails.
func NewTask(id, programID, programPath, inputPath, prover, callback string, env map[string]string) (*Task, error) {
	if env == nil {
		env = map[string]string{}
	}

	task := &Task{
		ID:           id,
		Status:       TaskStatusQueued,
		ProgramID:    programID,
		ProgramPath:  programPath,
		InputPath:    inputPath,
		Prover:       prover,
		Callback:     callback,
		Env:          env,
		ProofFixture: EmptyProofFixture,
		SubmittedAt:  time.Now().UTC(),
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == "" {
		return ErrInvalidID
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskStatus, t.Status)
	}
	if t.ProgramPath == "" {
		return fmt.Errorf("%w: program path is required", ErrValidation)
	}
	if t.InputPath == "" {
		return fmt.Errorf("%w: input path is required", ErrValidation)
	}
	if t.Prover == "" {
		return fmt.Errorf("%w: prover is required", ErrValidation)
	}
	return ValidateEnv(t.Env)
}

// TransitionTo moves the task to the given status if the state machine allows it.
func (t *Task) TransitionTo(status TaskStatus) error {
	if !CanTransition(t.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, status)
	}
	t.Status = status
	if status != TaskStatusRunning {
		t.PID = 0
	}
	return nil
}

// Finish records the outcome of an execution. A nil execErr marks the task done.
func (t *Task) Finish(output string, proofFixture string, elapsed time.Duration, execErr error) error {
	status := TaskStatusDone
	if execErr != nil {
		status = TaskStatusError
		output = execErr.Error()
	}
	if err := t.TransitionTo(status); err != nil {
		return err
	}
	if proofFixture == "" {
		proofFixture = EmptyProofFixture
	}
	t.Result = &output
	t.ProofFixture = proofFixture
	t.Elapsed = FormatElapsed(elapsed)
	return nil
}

// FormatElapsed renders a duration as seconds with microsecond precision.
func FormatElapsed(d time.Duration) string {
	return fmt.Sprintf("%.6f", d.Seconds())
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Env != nil {
		c.Env = make(map[string]string, len(t.Env))
		for k, v := range t.Env {
			c.Env[k] = v
		}
	}
	if t.Result != nil {
		r := *t.Result
		c.Result = &r
	}
	return &c
}
