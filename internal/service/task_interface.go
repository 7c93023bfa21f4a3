package service

import (
	"context"
	"time"

	"todoTracker/internal/models/task"
	"todoTracker/internal/query"

	"github.com/google/uuid"
)

// TaskRepository - контракт хранилища. Update и DeleteSoft выполняются только
// если версия в хранилище равна expected, иначе repository.ErrVersionConflict.
type TaskRepository interface {
	Create(ctx context.Context, t *task.Task, labels []task.LabelAssociation) error
	Update(ctx context.Context, t *task.Task, expected task.Version, labels []task.LabelAssociation) error
	DeleteSoft(ctx context.Context, t *task.Task, expected task.Version) error
	GetByID(ctx context.Context, tenant string, id uuid.UUID) (*task.Task, error)
	Find(ctx context.Context, spec query.Spec, skip, take int) ([]*task.Task, error)
	Count(ctx context.Context, spec query.Spec) (int, error)
	LabelsFor(ctx context.Context, taskIDs []uuid.UUID) (map[uuid.UUID][]task.LabelAssociation, error)
	FilesFor(ctx context.Context, taskIDs []uuid.UUID) (map[uuid.UUID][]task.File, error)
	AddFile(ctx context.Context, file *task.File) error
	DeleteFile(ctx context.Context, taskID, fileID uuid.UUID, at time.Time) error
	HealthCheck(ctx context.Context) error
}
