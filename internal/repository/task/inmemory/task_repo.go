package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"todoTracker/internal/logger"
	"todoTracker/internal/models/task"
	"todoTracker/internal/query"
	repo "todoTracker/internal/repository"

	"github.com/google/uuid"
)

type TaskStorage struct {
	storage map[uuid.UUID]*task.Task
	labels  map[uuid.UUID][]task.LabelAssociation
	files   map[uuid.UUID][]task.File
	mtx     *sync.RWMutex
	// порядок вставки, он же порядок хранилища для равных ключей сортировки
	ids []uuid.UUID
}

func NewTaskStorage() *TaskStorage {
	return &TaskStorage{
		storage: make(map[uuid.UUID]*task.Task),
		labels:  make(map[uuid.UUID][]task.LabelAssociation),
		files:   make(map[uuid.UUID][]task.File),
		mtx:     &sync.RWMutex{},
		ids:     []uuid.UUID{},
	}
}

func (s *TaskStorage) HealthCheck(ctx context.Context) error {
	logger.Debug("Repository: Соединение стабильно")
	return nil
}

func (s *TaskStorage) Create(ctx context.Context, taskToCreate *task.Task, labels []task.LabelAssociation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	taskToCreate.Version = 1
	s.storage[taskToCreate.ID] = taskToCreate.Clone()
	s.labels[taskToCreate.ID] = append([]task.LabelAssociation(nil), labels...)
	s.ids = append(s.ids, taskToCreate.ID)
	return nil
}

// Update применяет изменения только если версия в хранилище совпадает с expected.
func (s *TaskStorage) Update(ctx context.Context, taskToUpdate *task.Task, expected task.Version, labels []task.LabelAssociation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.storage[taskToUpdate.ID]
	if !ok || existed.Tenant != taskToUpdate.Tenant || existed.IsDeleted() {
		return repo.ErrVersionConflict
	}
	if existed.Version != expected {
		return repo.ErrVersionConflict
	}

	taskToUpdate.Version = existed.Version + 1
	updated := taskToUpdate.Clone()
	updated.CreatedAt = existed.CreatedAt

	s.storage[taskToUpdate.ID] = updated
	s.labels[taskToUpdate.ID] = append([]task.LabelAssociation(nil), labels...)
	return nil
}

func (s *TaskStorage) DeleteSoft(ctx context.Context, taskToDelete *task.Task, expected task.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.storage[taskToDelete.ID]
	if !ok || existed.Tenant != taskToDelete.Tenant || existed.IsDeleted() {
		return repo.ErrNotFound
	}
	if existed.Version != expected {
		return repo.ErrVersionConflict
	}

	deleted := existed.Clone()
	deleted.Lifecycle = taskToDelete.Lifecycle
	deleted.UpdatedAt = taskToDelete.UpdatedAt
	deleted.CompletedAt = nil
	deleted.Version = existed.Version + 1

	taskToDelete.Version = deleted.Version
	s.storage[taskToDelete.ID] = deleted
	return nil
}

func (s *TaskStorage) GetByID(ctx context.Context, tenant string, id uuid.UUID) (*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	taskToGet, ok := s.storage[id]
	if !ok || taskToGet.Tenant != tenant || taskToGet.IsDeleted() {
		return nil, repo.ErrNotFound
	}
	return taskToGet.Clone(), nil
}

func (s *TaskStorage) matching(spec query.Spec) []*task.Task {
	res := []*task.Task{}
	for _, id := range s.ids {
		t := s.storage[id]
		if spec.Matches(t, labelIDs(s.labels[id])) {
			res = append(res, t)
		}
	}
	return res
}

func labelIDs(assocs []task.LabelAssociation) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(assocs))
	for _, a := range assocs {
		ids = append(ids, a.LabelID)
	}
	return ids
}

func (s *TaskStorage) Find(ctx context.Context, spec query.Spec, skip, take int) ([]*task.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	found := s.matching(spec)
	sort.SliceStable(found, func(i, j int) bool {
		return spec.Less(found[i], found[j])
	})

	res := []*task.Task{}
	for i := max(skip, 0); i < len(found) && len(res) < take; i++ {
		res = append(res, found[i].Clone())
	}
	return res, nil
}

func (s *TaskStorage) Count(ctx context.Context, spec query.Spec) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return len(s.matching(spec)), nil
}

func (s *TaskStorage) LabelsFor(ctx context.Context, taskIDs []uuid.UUID) (map[uuid.UUID][]task.LabelAssociation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := make(map[uuid.UUID][]task.LabelAssociation, len(taskIDs))
	for _, id := range taskIDs {
		if assocs, ok := s.labels[id]; ok {
			res[id] = append([]task.LabelAssociation(nil), assocs...)
		}
	}
	return res, nil
}

// FilesFor возвращает только неудалённые файлы.
func (s *TaskStorage) FilesFor(ctx context.Context, taskIDs []uuid.UUID) (map[uuid.UUID][]task.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := make(map[uuid.UUID][]task.File, len(taskIDs))
	for _, id := range taskIDs {
		for _, f := range s.files[id] {
			if f.IsDeleted {
				continue
			}
			res[id] = append(res[id], f)
		}
	}
	return res, nil
}

func (s *TaskStorage) AddFile(ctx context.Context, file *task.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.storage[file.TaskID]; !ok {
		return repo.ErrNotFound
	}
	s.files[file.TaskID] = append(s.files[file.TaskID], *file)
	return nil
}

func (s *TaskStorage) DeleteFile(ctx context.Context, taskID, fileID uuid.UUID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	files := s.files[taskID]
	for i := range files {
		if files[i].ID == fileID && !files[i].IsDeleted {
			files[i].IsDeleted = true
			files[i].DeletedAt = &at
			return nil
		}
	}
	return repo.ErrNotFound
}

// PurgeDeleted физически удаляет задачи, удалённые раньше before, вместе с метками и файлами.
func (s *TaskStorage) PurgeDeleted(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	purged := 0
	kept := s.ids[:0]
	for _, id := range s.ids {
		t := s.storage[id]
		deletedAt := t.Lifecycle.DeletedAt()
		if purged < limit && deletedAt != nil && deletedAt.Before(before) {
			delete(s.storage, id)
			delete(s.labels, id)
			delete(s.files, id)
			purged++
			continue
		}
		kept = append(kept, id)
	}
	s.ids = kept

	return purged, nil
}
