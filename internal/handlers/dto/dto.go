package dto

import (
	"time"

	"todoTracker/internal/models/task"
	"todoTracker/internal/service"

	"github.com/google/uuid"
)

type CreateTaskRequest struct {
	Title       string         `json:"title"`
	Description *string        `json:"description,omitempty"`
	DueDate     *time.Time     `json:"dueDate,omitempty"`
	Priority    *task.Priority `json:"priority,omitempty"`
	LabelIDs    []uuid.UUID    `json:"labelIds,omitempty"`
}

// UpdateTaskRequest - PUT заменяет все изменяемые поля, отсутствующие опциональные поля обнуляются
type UpdateTaskRequest struct {
	Title       string         `json:"title"`
	Description *string        `json:"description,omitempty"`
	Status      *task.Status   `json:"status"`
	DueDate     *time.Time     `json:"dueDate,omitempty"`
	Priority    *task.Priority `json:"priority,omitempty"`
	LabelIDs    []uuid.UUID    `json:"labelIds,omitempty"`
}

type AttachFileRequest struct {
	FileName    string  `json:"fileName"`
	FileSize    int64   `json:"fileSize"`
	ContentType string  `json:"contentType"`
	Checksum    *string `json:"checksum,omitempty"`
}

type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"requestId,omitempty"`
	Path      string         `json:"path"`
}

func priorityOrDefault(p *task.Priority) task.Priority {
	if p == nil {
		return task.PriorityMedium
	}
	return *p
}

func (r CreateTaskRequest) ToInput() service.CreateTaskInput {
	return service.CreateTaskInput{
		Title:       r.Title,
		Description: r.Description,
		DueDate:     r.DueDate,
		Priority:    priorityOrDefault(r.Priority),
		LabelIDs:    r.LabelIDs,
	}
}

// ToInput ожидает, что наличие статуса уже проверено
func (r UpdateTaskRequest) ToInput(expected *task.Version) service.UpdateTaskInput {
	in := service.UpdateTaskInput{
		Title:           r.Title,
		Description:     r.Description,
		DueDate:         r.DueDate,
		Priority:        priorityOrDefault(r.Priority),
		LabelIDs:        r.LabelIDs,
		ExpectedVersion: expected,
	}
	if r.Status != nil {
		in.Status = *r.Status
	}
	return in
}

func (r AttachFileRequest) ToInput() service.FileInput {
	return service.FileInput{
		FileName:    r.FileName,
		Size:        r.FileSize,
		ContentType: r.ContentType,
		Checksum:    r.Checksum,
	}
}
