// Package query превращает нетипизированные параметры списка задач в спецификацию
// фильтрации и сортировки. Спецификацию исполняет хранилище: в памяти через
// Matches/Less или в SQL через Where/OrderBy.
package query

import (
	"strings"

	"todoTracker/internal/models/task"

	"github.com/google/uuid"
)

type SortKey int

const (
	SortByCreatedAt SortKey = iota
	SortByTitle
	SortByDueDate
	SortByUpdatedAt
	SortByPriority
)

func (k SortKey) String() string {
	switch k {
	case SortByTitle:
		return "title"
	case SortByDueDate:
		return "dueDate"
	case SortByUpdatedAt:
		return "updatedAt"
	case SortByPriority:
		return "priority"
	default:
		return "createdAt"
	}
}

// Params - параметры в том виде, в каком они пришли от клиента.
type Params struct {
	Status    string
	Search    string
	SortBy    string
	SortOrder string
	LabelIDs  []uuid.UUID
}

type Spec struct {
	Tenant string
	// nil - фильтра по статусу нет
	Status     *task.Status
	Search     string
	LabelIDs   []uuid.UUID
	SortKey    SortKey
	Descending bool
}

// Build никогда не отклоняет параметры: неизвестный статус отключает фильтр,
// неизвестное поле сортировки означает createdAt, любой порядок кроме desc - по возрастанию.
func Build(tenant string, p Params) Spec {
	spec := Spec{
		Tenant:     tenant,
		Search:     p.Search,
		SortKey:    parseSortKey(p.SortBy),
		Descending: strings.EqualFold(p.SortOrder, "desc"),
	}

	if p.Status != "" {
		if status, ok := task.ParseStatus(p.Status); ok {
			spec.Status = &status
		}
	}

	if len(p.LabelIDs) > 0 {
		seen := make(map[uuid.UUID]struct{}, len(p.LabelIDs))
		for _, id := range p.LabelIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			spec.LabelIDs = append(spec.LabelIDs, id)
		}
	}

	return spec
}

func parseSortKey(s string) SortKey {
	switch strings.ToLower(s) {
	case "title":
		return SortByTitle
	case "duedate":
		return SortByDueDate
	case "updatedat":
		return SortByUpdatedAt
	case "priority":
		return SortByPriority
	default:
		return SortByCreatedAt
	}
}

// Matches проверяет задачу против всех фильтров. labelIDs - метки этой задачи.
func (s Spec) Matches(t *task.Task, labelIDs []uuid.UUID) bool {
	if t.Tenant != s.Tenant || t.IsDeleted() {
		return false
	}

	if s.Status != nil && t.Status() != *s.Status {
		return false
	}

	if s.Search != "" {
		inTitle := strings.Contains(t.Title, s.Search)
		inDescription := t.Description != nil && strings.Contains(*t.Description, s.Search)
		if !inTitle && !inDescription {
			return false
		}
	}

	if len(s.LabelIDs) > 0 && !intersects(s.LabelIDs, labelIDs) {
		return false
	}

	return true
}

func intersects(wanted, have []uuid.UUID) bool {
	for _, w := range wanted {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

// Less задаёт порядок по одному ключу. Равные элементы остаются в порядке хранилища,
// поэтому использовать вместе со стабильной сортировкой.
func (s Spec) Less(a, b *task.Task) bool {
	c := s.compare(a, b)
	if s.Descending {
		return c > 0
	}
	return c < 0
}

func (s Spec) compare(a, b *task.Task) int {
	switch s.SortKey {
	case SortByTitle:
		return strings.Compare(a.Title, b.Title)
	case SortByDueDate:
		// отсутствующий срок меньше любого заданного
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return -1
		case b.DueDate == nil:
			return 1
		}
		return a.DueDate.Compare(*b.DueDate)
	case SortByUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case SortByPriority:
		return int(a.Priority) - int(b.Priority)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
