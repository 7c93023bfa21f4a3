package task

import (
	"time"

	"github.com/google/uuid"
)

type TaskOption func(*Task)

// New собирает новую задачу в состоянии Pending. Время создания и обновления совпадают.
func New(tenant, title string, now time.Time, opts ...TaskOption) *Task {
	t := &Task{
		ID:        uuid.New(),
		Tenant:    tenant,
		Title:     title,
		Priority:  PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
		Lifecycle: Active(StatusPending),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func WithDescription(description *string) TaskOption {
	if description == nil {
		return nil
	}
	d := *description
	return func(task *Task) {
		task.Description = &d
	}
}

func WithPriority(priority Priority) TaskOption {
	if !priority.Valid() {
		return nil
	}
	return func(task *Task) {
		task.Priority = priority
	}
}

func WithDueDate(dueDate *time.Time) TaskOption {
	if dueDate == nil || dueDate.IsZero() {
		return nil
	}
	d := *dueDate
	return func(task *Task) {
		task.DueDate = &d
	}
}

// Associations строит строки связей задачи с метками; повторы схлопываются, порядок сохраняется.
func Associations(taskID uuid.UUID, labelIDs []uuid.UUID, createdBy string, now time.Time) []LabelAssociation {
	seen := make(map[uuid.UUID]struct{}, len(labelIDs))
	res := make([]LabelAssociation, 0, len(labelIDs))

	for _, id := range labelIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, LabelAssociation{
			TaskID:    taskID,
			LabelID:   id,
			CreatedAt: now,
			CreatedBy: createdBy,
		})
	}
	return res
}
