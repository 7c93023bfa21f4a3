package task

import (
	"fmt"
	"time"
)

// Lifecycle объединяет статус задачи и признак мягкого удаления в одно значение:
// либо активная задача (Pending или Completed), либо удалённая с моментом удаления.
type Lifecycle struct {
	status    Status
	deletedAt *time.Time
}

func Active(status Status) Lifecycle {
	if status == StatusDeleted {
		panic("task: Active lifecycle cannot carry StatusDeleted")
	}
	return Lifecycle{status: status}
}

func Deleted(at time.Time) Lifecycle {
	return Lifecycle{status: StatusDeleted, deletedAt: &at}
}

func (l Lifecycle) Status() Status {
	return l.status
}

func (l Lifecycle) IsDeleted() bool {
	return l.deletedAt != nil
}

func (l Lifecycle) DeletedAt() *time.Time {
	if l.deletedAt == nil {
		return nil
	}
	at := *l.deletedAt
	return &at
}

// LifecycleFromColumns собирает состояние из плоских колонок хранилища.
// Строка со статусом Deleted без флага удаления считается Deleted на момент updatedAt.
func LifecycleFromColumns(status Status, isDeleted bool, deletedAt *time.Time, updatedAt time.Time) (Lifecycle, error) {
	if !status.Valid() {
		return Lifecycle{}, fmt.Errorf("неизвестный статус %d", int(status))
	}

	if isDeleted || status == StatusDeleted {
		at := updatedAt
		if deletedAt != nil {
			at = *deletedAt
		}
		return Deleted(at), nil
	}

	return Active(status), nil
}
