package service

import (
	"context"
	"io"

	"github.com/phrazzld/proverd/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockTaskRunner mocks the TaskRunner interface
type MockTaskRunner struct {
	mock.Mock
}

func (m *MockTaskRunner) Submit(ctx context.Context, task *domain.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockTaskRunner) Pause(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTaskRunner) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockTaskReader mocks the TaskReader interface
type MockTaskReader struct {
	mock.Mock
}

func (m *MockTaskReader) Get(ctx context.Context, id string) (*domain.Task, error) {
	args := m.Called(ctx, id)
	task, _ := args.Get(0).(*domain.Task)
	return task, args.Error(1)
}

func (m *MockTaskReader) List(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	args := m.Called(ctx, status)
	tasks, _ := args.Get(0).([]*domain.Task)
	return tasks, args.Error(1)
}

// MockInputWriter mocks the InputWriter interface
type MockInputWriter struct {
	mock.Mock
}

func (m *MockInputWriter) WriteInput(ctx context.Context, taskID string, payload []byte) (string, error) {
	args := m.Called(ctx, taskID, payload)
	return args.String(0), args.Error(1)
}

func (m *MockInputWriter) RemoveInput(taskID string) error {
	args := m.Called(taskID)
	return args.Error(0)
}

// MockProgramResolver mocks the ProgramResolver interface
type MockProgramResolver struct {
	mock.Mock
}

func (m *MockProgramResolver) Resolve(ctx context.Context, id string) (*domain.Program, string, error) {
	args := m.Called(ctx, id)
	program, _ := args.Get(0).(*domain.Program)
	return program, args.String(1), args.Error(2)
}

// MockProgramStore mocks store.ProgramStore
type MockProgramStore struct {
	mock.Mock
}

func (m *MockProgramStore) Save(ctx context.Context, program *domain.Program, r io.Reader) error {
	args := m.Called(ctx, program, r)
	return args.Error(0)
}

func (m *MockProgramStore) Get(ctx context.Context, id string) (*domain.Program, error) {
	args := m.Called(ctx, id)
	program, _ := args.Get(0).(*domain.Program)
	return program, args.Error(1)
}

func (m *MockProgramStore) Path(id string) string {
	args := m.Called(id)
	return args.String(0)
}

func (m *MockProgramStore) List(ctx context.Context) ([]*domain.Program, error) {
	args := m.Called(ctx)
	programs, _ := args.Get(0).([]*domain.Program)
	return programs, args.Error(1)
}
