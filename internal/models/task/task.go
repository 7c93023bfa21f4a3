package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
)

type Task struct {
	ID          uuid.UUID
	Tenant      string
	Title       string
	Description *string
	Priority    Priority
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	Lifecycle   Lifecycle
	// версия строки, выдаётся хранилищем при каждой записи
	Version Version
}

// Version - непрозрачная метка конкурентного доступа. Сравнивается только на равенство.
type Version int64

func (t *Task) Status() Status {
	return t.Lifecycle.Status()
}

func (t *Task) IsDeleted() bool {
	return t.Lifecycle.IsDeleted()
}

func (t *Task) Clone() *Task {
	c := *t
	if t.Description != nil {
		d := *t.Description
		c.Description = &d
	}
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.CompletedAt != nil {
		d := *t.CompletedAt
		c.CompletedAt = &d
	}
	return &c
}

type Status int

const (
	StatusPending   Status = 0
	StatusCompleted Status = 1
	StatusDeleted   Status = 2
)

var statusNames = map[Status]string{
	StatusPending:   "Pending",
	StatusCompleted: "Completed",
	StatusDeleted:   "Deleted",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus сравнивает строку с именами статусов без учёта регистра.
func ParseStatus(s string) (Status, bool) {
	for status, name := range statusNames {
		if strings.EqualFold(name, s) {
			return status, true
		}
	}
	return 0, false
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("статус должен быть строкой: %w", err)
	}
	parsed, ok := ParseStatus(raw)
	if !ok {
		return fmt.Errorf("неизвестный статус %q", raw)
	}
	*s = parsed
	return nil
}

type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

var priorityNames = map[Priority]string{
	PriorityLow:    "Low",
	PriorityMedium: "Medium",
	PriorityHigh:   "High",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

func ParsePriority(s string) (Priority, bool) {
	for priority, name := range priorityNames {
		if strings.EqualFold(name, s) {
			return priority, true
		}
	}
	return 0, false
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("приоритет должен быть строкой: %w", err)
	}
	parsed, ok := ParsePriority(raw)
	if !ok {
		return fmt.Errorf("неизвестный приоритет %q", raw)
	}
	*p = parsed
	return nil
}

type LabelAssociation struct {
	TaskID    uuid.UUID
	LabelID   uuid.UUID
	CreatedAt time.Time
	CreatedBy string
}

const (
	MaxFileSize          int64 = 10 * 1024 * 1024
	DefaultFileContainer       = "task-files"
)

// File - метаданные вложения. Содержимое хранится вне сервиса.
type File struct {
	ID           uuid.UUID
	TaskID       uuid.UUID
	OriginalName string
	StoredName   string
	Size         int64
	ContentType  string
	Container    string
	Path         string
	UploadedAt   time.Time
	UploadedBy   string
	IsDeleted    bool
	DeletedAt    *time.Time
	Checksum     *string
}

var AllowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"application/pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"text/plain",
}

func IsAllowedContentType(contentType string) bool {
	for _, allowed := range AllowedContentTypes {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}
