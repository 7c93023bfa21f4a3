package handlers

import (
	"context"

	"todoTracker/internal/projection"
	"todoTracker/internal/service"

	"github.com/google/uuid"
)

type Service interface {
	HealthCheck(ctx context.Context) error
	CreateTask(ctx context.Context, tenant string, in service.CreateTaskInput) (*projection.TaskView, error)
	GetTask(ctx context.Context, tenant string, id uuid.UUID) (*projection.TaskView, error)
	UpdateTask(ctx context.Context, tenant string, id uuid.UUID, in service.UpdateTaskInput) (*projection.TaskView, error)
	DeleteTask(ctx context.Context, tenant string, id uuid.UUID) error
	ListTasks(ctx context.Context, tenant string, params service.ListParams) (*service.Page, error)
	AttachFile(ctx context.Context, tenant string, taskID uuid.UUID, in service.FileInput) (*projection.FileDescriptor, error)
	DeleteFile(ctx context.Context, tenant string, taskID, fileID uuid.UUID) error
}

var _ Service = (*service.TaskService)(nil)
