// Package projection строит внешнее представление задачи из сохранённого состояния.
package projection

import (
	"time"

	"todoTracker/internal/models/task"

	"github.com/google/uuid"
)

type TaskView struct {
	ID          uuid.UUID        `json:"id"`
	Title       string           `json:"title"`
	Description *string          `json:"description"`
	Status      task.Status      `json:"status"`
	Priority    task.Priority    `json:"priority"`
	DueDate     *time.Time       `json:"dueDate"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	CompletedAt *time.Time       `json:"completedAt"`
	Version     task.Version     `json:"version"`
	Labels      []LabelRef       `json:"labels"`
	Files       []FileDescriptor `json:"files"`
}

// LabelRef содержит только идентификатор: имя и цвет метки отдаёт каталог меток.
type LabelRef struct {
	ID uuid.UUID `json:"id"`
}

type FileDescriptor struct {
	ID          uuid.UUID `json:"id"`
	FileName    string    `json:"fileName"`
	FileSize    int64     `json:"fileSize"`
	ContentType string    `json:"contentType"`
	Location    string    `json:"location"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

func Project(t *task.Task, labels []task.LabelAssociation, files []task.File) TaskView {
	view := TaskView{
		ID:          t.ID,
		Title:       t.Title,
		Description: copyPtr(t.Description),
		Status:      t.Status(),
		Priority:    t.Priority,
		DueDate:     copyPtr(t.DueDate),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: copyPtr(t.CompletedAt),
		Version:     t.Version,
		Labels:      make([]LabelRef, 0, len(labels)),
		Files:       make([]FileDescriptor, 0, len(files)),
	}

	for _, l := range labels {
		view.Labels = append(view.Labels, LabelRef{ID: l.LabelID})
	}

	for _, f := range files {
		if f.IsDeleted {
			continue
		}
		view.Files = append(view.Files, File(f))
	}

	return view
}

func File(f task.File) FileDescriptor {
	return FileDescriptor{
		ID:          f.ID,
		FileName:    f.OriginalName,
		FileSize:    f.Size,
		ContentType: f.ContentType,
		Location:    f.Container + "/" + f.Path,
		UploadedAt:  f.UploadedAt,
	}
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
