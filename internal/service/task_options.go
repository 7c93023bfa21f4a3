package service

import "time"

// Clock - источник текущего времени. В тестах подменяется фиксированным.
type Clock func() time.Time

type Option func(*TaskService)

func WithClock(clock Clock) Option {
	return func(s *TaskService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithFileContainer задаёт контейнер хранилища, в который попадают метаданные файлов
func WithFileContainer(container string) Option {
	return func(s *TaskService) {
		if container != "" {
			s.fileContainer = container
		}
	}
}
