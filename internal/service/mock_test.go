package service_test

import (
	"context"
	"time"

	"todoTracker/internal/models/task"
	"todoTracker/internal/query"
	"todoTracker/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockTaskRepository - мок репозитория
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTaskRepository) Create(ctx context.Context, t *task.Task, labels []task.LabelAssociation) error {
	args := m.Called(ctx, t, labels)
	return args.Error(0)
}

func (m *MockTaskRepository) Update(ctx context.Context, t *task.Task, expected task.Version, labels []task.LabelAssociation) error {
	args := m.Called(ctx, t, expected, labels)
	return args.Error(0)
}

func (m *MockTaskRepository) DeleteSoft(ctx context.Context, t *task.Task, expected task.Version) error {
	args := m.Called(ctx, t, expected)
	return args.Error(0)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, tenant string, id uuid.UUID) (*task.Task, error) {
	args := m.Called(ctx, tenant, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*task.Task), args.Error(1)
}

func (m *MockTaskRepository) Find(ctx context.Context, spec query.Spec, skip, take int) ([]*task.Task, error) {
	args := m.Called(ctx, spec, skip, take)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*task.Task), args.Error(1)
}

func (m *MockTaskRepository) Count(ctx context.Context, spec query.Spec) (int, error) {
	args := m.Called(ctx, spec)
	return args.Int(0), args.Error(1)
}

func (m *MockTaskRepository) LabelsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]task.LabelAssociation, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID][]task.LabelAssociation), args.Error(1)
}

func (m *MockTaskRepository) FilesFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]task.File, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID][]task.File), args.Error(1)
}

func (m *MockTaskRepository) AddFile(ctx context.Context, file *task.File) error {
	args := m.Called(ctx, file)
	return args.Error(0)
}

func (m *MockTaskRepository) DeleteFile(ctx context.Context, taskID, fileID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, taskID, fileID, at)
	return args.Error(0)
}

var _ service.TaskRepository = (*MockTaskRepository)(nil)
