package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"todoTracker/internal/logger"
	"todoTracker/internal/models/task"
	"todoTracker/internal/pagination"
	"todoTracker/internal/projection"
	"todoTracker/internal/query"
	rep "todoTracker/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// здесь происходит проверка ошибок бизнес-логики

const (
	maxFileNameLength = 255
	maxChecksumLength = 64
)

type TaskService struct {
	repo          TaskRepository
	now           Clock
	fileContainer string
}

func NewTaskService(repo TaskRepository, opts ...Option) *TaskService {
	s := &TaskService{
		repo:          repo,
		now:           func() time.Time { return time.Now().UTC() },
		fileContainer: task.DefaultFileContainer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateTaskInput struct {
	Title       string
	Description *string
	DueDate     *time.Time
	Priority    task.Priority
	LabelIDs    []uuid.UUID
}

type UpdateTaskInput struct {
	Title       string
	Description *string
	Status      task.Status
	DueDate     *time.Time
	Priority    task.Priority
	LabelIDs    []uuid.UUID
	// если задана, запись выполняется только при совпадении с текущей версией
	ExpectedVersion *task.Version
}

type ListParams struct {
	Page     int
	PageSize int
	query.Params
}

type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	PageSize    int  `json:"pageSize"`
	TotalCount  int  `json:"totalCount"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

type Page struct {
	Items      []projection.TaskView `json:"items"`
	Pagination Pagination            `json:"pagination"`
}

type FileInput struct {
	FileName    string
	Size        int64
	ContentType string
	Checksum    *string
}

func (s *TaskService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}

func (s *TaskService) CreateTask(ctx context.Context, tenant string, in CreateTaskInput) (*projection.TaskView, error) {
	if err := validateFields(in.Title, in.Description, in.Priority, task.StatusPending); err != nil {
		return nil, err
	}

	now := s.now()
	newTask := task.New(tenant, in.Title, now,
		task.WithDescription(in.Description),
		task.WithPriority(in.Priority),
		task.WithDueDate(in.DueDate),
	)
	labels := task.Associations(newTask.ID, in.LabelIDs, tenant, now)

	if err := s.repo.Create(ctx, newTask, labels); err != nil {
		return nil, s.mapRepoError("create", tenant, newTask.ID, err)
	}
	logger.Info("Service: Задача создана",
		zap.String("task_id", newTask.ID.String()),
		zap.String("tenant", tenant),
	)

	return s.GetTask(ctx, tenant, newTask.ID)
}

func (s *TaskService) GetTask(ctx context.Context, tenant string, id uuid.UUID) (*projection.TaskView, error) {
	found, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, s.mapRepoError("get", tenant, id, err)
	}

	views, err := s.project(ctx, tenant, []*task.Task{found})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *TaskService) UpdateTask(ctx context.Context, tenant string, id uuid.UUID, in UpdateTaskInput) (*projection.TaskView, error) {
	if err := validateFields(in.Title, in.Description, in.Priority, in.Status); err != nil {
		return nil, err
	}

	existed, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, s.mapRepoError("update", tenant, id, err)
	}

	expected := existed.Version
	if in.ExpectedVersion != nil && *in.ExpectedVersion != expected {
		return nil, NewConflict(id.String(), rep.ErrVersionConflict)
	}

	now := s.monotonicNow(existed)
	updated := existed.Clone()
	updated.Title = in.Title
	updated.Description = in.Description
	updated.DueDate = in.DueDate
	updated.Priority = in.Priority
	updated.UpdatedAt = now
	updated.CompletedAt = completedAt(existed, in.Status, now)

	if in.Status == task.StatusDeleted {
		updated.Lifecycle = task.Deleted(now)
	} else {
		updated.Lifecycle = task.Active(in.Status)
	}

	labels := task.Associations(id, in.LabelIDs, tenant, now)
	if err := s.repo.Update(ctx, updated, expected, labels); err != nil {
		return nil, s.mapRepoError("update", tenant, id, err)
	}
	logger.Info("Service: Задача обновлена",
		zap.String("task_id", id.String()),
		zap.String("status", in.Status.String()),
		zap.Int64("version", int64(updated.Version)),
	)

	// удалённая задача уже не читается, отдаём то, что записали
	if updated.IsDeleted() {
		view := projection.Project(updated, labels, nil)
		return &view, nil
	}
	return s.GetTask(ctx, tenant, id)
}

func (s *TaskService) DeleteTask(ctx context.Context, tenant string, id uuid.UUID) error {
	existed, err := s.repo.GetByID(ctx, tenant, id)
	if err != nil {
		return s.mapRepoError("delete", tenant, id, err)
	}

	now := s.monotonicNow(existed)
	deleted := existed.Clone()
	deleted.Lifecycle = task.Deleted(now)
	deleted.UpdatedAt = now
	deleted.CompletedAt = nil

	if err := s.repo.DeleteSoft(ctx, deleted, existed.Version); err != nil {
		return s.mapRepoError("delete", tenant, id, err)
	}
	logger.Info("Service: Задача удалена", zap.String("task_id", id.String()))
	return nil
}

func (s *TaskService) ListTasks(ctx context.Context, tenant string, params ListParams) (*Page, error) {
	spec := query.Build(tenant, params.Params)
	// skip и take не зависят от общего количества, поэтому страницу можно читать параллельно с подсчётом
	window := pagination.Calculate(0, params.Page, params.PageSize)

	var (
		total int
		found []*task.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		total, err = s.repo.Count(gctx, spec)
		return err
	})
	g.Go(func() error {
		var err error
		found, err = s.repo.Find(gctx, spec, window.Skip, window.Take)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, s.mapRepoError("list", tenant, uuid.Nil, err)
	}

	items, err := s.project(ctx, tenant, found)
	if err != nil {
		return nil, err
	}

	result := pagination.Calculate(total, params.Page, params.PageSize)
	return &Page{
		Items: items,
		Pagination: Pagination{
			CurrentPage: result.Page,
			PageSize:    result.Take,
			TotalCount:  total,
			TotalPages:  result.TotalPages,
			HasNext:     result.HasNext,
			HasPrevious: result.HasPrevious,
		},
	}, nil
}

func (s *TaskService) AttachFile(ctx context.Context, tenant string, taskID uuid.UUID, in FileInput) (*projection.FileDescriptor, error) {
	if err := validateFile(in); err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByID(ctx, tenant, taskID); err != nil {
		return nil, s.mapRepoError("attach_file", tenant, taskID, err)
	}

	fileID := uuid.New()
	stored := fileID.String() + strings.ToLower(path.Ext(in.FileName))
	file := &task.File{
		ID:           fileID,
		TaskID:       taskID,
		OriginalName: in.FileName,
		StoredName:   stored,
		Size:         in.Size,
		ContentType:  in.ContentType,
		Container:    s.fileContainer,
		Path:         path.Join(tenant, taskID.String(), stored),
		UploadedAt:   s.now(),
		UploadedBy:   tenant,
		Checksum:     in.Checksum,
	}

	if err := s.repo.AddFile(ctx, file); err != nil {
		return nil, s.mapRepoError("attach_file", tenant, taskID, err)
	}
	logger.Info("Service: Файл прикреплён",
		zap.String("task_id", taskID.String()),
		zap.String("file_id", fileID.String()),
	)

	descriptor := projection.File(*file)
	return &descriptor, nil
}

func (s *TaskService) DeleteFile(ctx context.Context, tenant string, taskID, fileID uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, tenant, taskID); err != nil {
		return s.mapRepoError("delete_file", tenant, taskID, err)
	}

	if err := s.repo.DeleteFile(ctx, taskID, fileID, s.now()); err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return NewNotFound("Файл", fileID.String())
		}
		return s.mapRepoError("delete_file", tenant, taskID, err)
	}
	return nil
}

func (s *TaskService) project(ctx context.Context, tenant string, tasks []*task.Task) ([]projection.TaskView, error) {
	ids := make([]uuid.UUID, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}

	var (
		labels map[uuid.UUID][]task.LabelAssociation
		files  map[uuid.UUID][]task.File
	)
	if len(ids) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			labels, err = s.repo.LabelsFor(gctx, ids)
			return err
		})
		g.Go(func() error {
			var err error
			files, err = s.repo.FilesFor(gctx, ids)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, s.mapRepoError("project", tenant, uuid.Nil, err)
		}
	}

	views := make([]projection.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, projection.Project(t, labels[t.ID], files[t.ID]))
	}
	return views, nil
}

// updated-at не должен уходить назад, даже если часы отстают от прошлой записи
func (s *TaskService) monotonicNow(existed *task.Task) time.Time {
	now := s.now()
	if now.Before(existed.UpdatedAt) {
		return existed.UpdatedAt
	}
	return now
}

func completedAt(existed *task.Task, next task.Status, now time.Time) *time.Time {
	prev := existed.Status()
	switch {
	case next == task.StatusCompleted && prev != task.StatusCompleted:
		return &now
	case prev == task.StatusCompleted && next != task.StatusCompleted:
		return nil
	default:
		return existed.CompletedAt
	}
}

func (s *TaskService) mapRepoError(op, tenant string, id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug("Service: Операция отменена", zap.String("op", op), zap.String("task_id", id.String()))
		return NewCancelled(err)
	case errors.Is(err, rep.ErrNotFound):
		logger.Info("Service: Задача не найдена", zap.String("op", op), zap.String("target_id", id.String()))
		return NewNotFound("Задача", id.String())
	case errors.Is(err, rep.ErrVersionConflict):
		logger.Warn("Service: Конфликт версий", zap.String("op", op), zap.String("task_id", id.String()))
		return NewConflict(id.String(), err)
	default:
		logger.Error("Service: Ошибка хранилища", err,
			zap.String("op", op),
			zap.String("tenant", tenant),
			zap.String("task_id", id.String()),
		)
		return NewInternal(err)
	}
}

func validateFields(title string, description *string, priority task.Priority, status task.Status) error {
	var fields []FieldError

	switch n := utf8.RuneCountInString(title); {
	case strings.TrimSpace(title) == "":
		fields = append(fields, FieldError{Field: "title", Message: "обязательное поле"})
	case n > task.MaxTitleLength:
		fields = append(fields, FieldError{Field: "title", Message: fmt.Sprintf("не длиннее %d символов", task.MaxTitleLength)})
	}

	if description != nil && utf8.RuneCountInString(*description) > task.MaxDescriptionLength {
		fields = append(fields, FieldError{Field: "description", Message: fmt.Sprintf("не длиннее %d символов", task.MaxDescriptionLength)})
	}
	if !priority.Valid() {
		fields = append(fields, FieldError{Field: "priority", Message: "допустимо Low, Medium или High"})
	}
	if !status.Valid() {
		fields = append(fields, FieldError{Field: "status", Message: "допустимо Pending, Completed или Deleted"})
	}

	if len(fields) > 0 {
		return NewValidationError(fields...)
	}
	return nil
}

func validateFile(in FileInput) error {
	var fields []FieldError

	switch n := utf8.RuneCountInString(in.FileName); {
	case strings.TrimSpace(in.FileName) == "":
		fields = append(fields, FieldError{Field: "fileName", Message: "обязательное поле"})
	case n > maxFileNameLength:
		fields = append(fields, FieldError{Field: "fileName", Message: fmt.Sprintf("не длиннее %d символов", maxFileNameLength)})
	}
	if in.Size < 1 || in.Size > task.MaxFileSize {
		fields = append(fields, FieldError{Field: "fileSize", Message: fmt.Sprintf("от 1 до %d байт", task.MaxFileSize)})
	}
	if !task.IsAllowedContentType(in.ContentType) {
		fields = append(fields, FieldError{Field: "contentType", Message: "тип файла не поддерживается"})
	}
	if in.Checksum != nil && utf8.RuneCountInString(*in.Checksum) > maxChecksumLength {
		fields = append(fields, FieldError{Field: "checksum", Message: fmt.Sprintf("не длиннее %d символов", maxChecksumLength)})
	}

	if len(fields) > 0 {
		return NewValidationError(fields...)
	}
	return nil
}
