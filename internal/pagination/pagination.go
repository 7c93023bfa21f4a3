// Package pagination нормализует параметры страницы и считает смещения.
package pagination

import "math"

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxPage - предел номера страницы, при котором (page-1)*MaxPageSize ещё помещается в int
	MaxPage = math.MaxInt/MaxPageSize + 1
)

type Result struct {
	Page        int
	Skip        int
	Take        int
	TotalPages  int
	HasNext     bool
	HasPrevious bool
}

// Calculate никогда не возвращает ошибку: page зажимается в [1, MaxPage], pageSize в [1, MaxPageSize].
func Calculate(totalCount, page, pageSize int) Result {
	if totalCount < 0 {
		totalCount = 0
	}
	page = min(max(page, 1), MaxPage)
	take := min(max(pageSize, 1), MaxPageSize)

	totalPages := (totalCount + take - 1) / take

	return Result{
		Page:        page,
		Skip:        (page - 1) * take,
		Take:        take,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
	}
}
