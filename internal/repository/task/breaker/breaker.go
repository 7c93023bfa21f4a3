// Package breaker оборачивает хранилище задач предохранителем gobreaker.
// Бизнес-исходы (не найдено, конфликт версий, отмена запроса) не считаются отказами хранилища.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"todoTracker/internal/logger"
	"todoTracker/internal/models/task"
	"todoTracker/internal/query"
	repo "todoTracker/internal/repository"
	"todoTracker/internal/service"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type Settings struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
	HalfOpenMax uint32
	// период сброса счётчиков в закрытом состоянии, 0 - не сбрасывать
	Interval time.Duration
}

type Repository struct {
	next service.TaskRepository
	cb   *gobreaker.CircuitBreaker
}

var _ service.TaskRepository = (*Repository)(nil)

func New(next service.TaskRepository, st Settings) *Repository {
	if st.Name == "" {
		st.Name = "tasks-repository"
	}
	if st.MaxFailures == 0 {
		st.MaxFailures = 5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: st.HalfOpenMax,
		Interval:    st.Interval,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Repository: Состояние предохранителя изменилось",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: isSuccessful,
	})

	return &Repository{next: next, cb: cb}
}

func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, repo.ErrNotFound) ||
		errors.Is(err, repo.ErrVersionConflict) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (r *Repository) State() gobreaker.State {
	return r.cb.State()
}

func call[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("хранилище недоступно: %w", err)
		}
		return zero, err
	}
	return res.(T), nil
}

func exec(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := call(cb, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (r *Repository) Create(ctx context.Context, t *task.Task, labels []task.LabelAssociation) error {
	return exec(r.cb, func() error { return r.next.Create(ctx, t, labels) })
}

func (r *Repository) Update(ctx context.Context, t *task.Task, expected task.Version, labels []task.LabelAssociation) error {
	return exec(r.cb, func() error { return r.next.Update(ctx, t, expected, labels) })
}

func (r *Repository) DeleteSoft(ctx context.Context, t *task.Task, expected task.Version) error {
	return exec(r.cb, func() error { return r.next.DeleteSoft(ctx, t, expected) })
}

func (r *Repository) GetByID(ctx context.Context, tenant string, id uuid.UUID) (*task.Task, error) {
	return call(r.cb, func() (*task.Task, error) { return r.next.GetByID(ctx, tenant, id) })
}

func (r *Repository) Find(ctx context.Context, spec query.Spec, skip, take int) ([]*task.Task, error) {
	return call(r.cb, func() ([]*task.Task, error) { return r.next.Find(ctx, spec, skip, take) })
}

func (r *Repository) Count(ctx context.Context, spec query.Spec) (int, error) {
	return call(r.cb, func() (int, error) { return r.next.Count(ctx, spec) })
}

func (r *Repository) LabelsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]task.LabelAssociation, error) {
	return call(r.cb, func() (map[uuid.UUID][]task.LabelAssociation, error) { return r.next.LabelsFor(ctx, ids) })
}

func (r *Repository) FilesFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]task.File, error) {
	return call(r.cb, func() (map[uuid.UUID][]task.File, error) { return r.next.FilesFor(ctx, ids) })
}

func (r *Repository) AddFile(ctx context.Context, file *task.File) error {
	return exec(r.cb, func() error { return r.next.AddFile(ctx, file) })
}

func (r *Repository) DeleteFile(ctx context.Context, taskID, fileID uuid.UUID, at time.Time) error {
	return exec(r.cb, func() error { return r.next.DeleteFile(ctx, taskID, fileID, at) })
}

// HealthCheck идёт мимо предохранителя, чтобы проверка видела реальное состояние БД
func (r *Repository) HealthCheck(ctx context.Context) error {
	if r.cb.State() == gobreaker.StateOpen {
		logger.Warn("Repository: Предохранитель разомкнут")
	}
	return r.next.HealthCheck(ctx)
}
