package api

import (
	"context"
	"io"

	"github.com/phrazzld/proverd/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockTaskService mocks service.TaskService
type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Task, error) {
	args := m.Called(ctx, req)
	task, _ := args.Get(0).(*domain.Task)
	return task, args.Error(1)
}

func (m *MockTaskService) GetStatus(ctx context.Context, id string) (*domain.Task, error) {
	args := m.Called(ctx, id)
	task, _ := args.Get(0).(*domain.Task)
	return task, args.Error(1)
}

func (m *MockTaskService) ListTasks(ctx context.Context, status domain.TaskStatus) ([]*domain.Task, error) {
	args := m.Called(ctx, status)
	tasks, _ := args.Get(0).([]*domain.Task)
	return tasks, args.Error(1)
}

func (m *MockTaskService) DeleteTask(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockTaskService) PauseTask(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockProgramService mocks service.ProgramService
type MockProgramService struct {
	mock.Mock
}

// Upload drains the binary so that tests can assert on what was sent.
func (m *MockProgramService) Upload(
	ctx context.Context,
	req domain.UploadProgramRequest,
	binary io.Reader,
) (*domain.Program, error) {
	data, err := io.ReadAll(binary)
	if err != nil {
		return nil, err
	}
	args := m.Called(ctx, req, data)
	program, _ := args.Get(0).(*domain.Program)
	return program, args.Error(1)
}

func (m *MockProgramService) List(ctx context.Context) ([]*domain.Program, error) {
	args := m.Called(ctx)
	programs, _ := args.Get(0).([]*domain.Program)
	return programs, args.Error(1)
}

func (m *MockProgramService) Resolve(ctx context.Context, id string) (*domain.Program, string, error) {
	args := m.Called(ctx, id)
	program, _ := args.Get(0).(*domain.Program)
	return program, args.String(1), args.Error(2)
}
