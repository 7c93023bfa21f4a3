package query_test

import (
	"testing"

	"todoTracker/internal/query"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSpec_Where_Postgres(t *testing.T) {
	label := uuid.New()
	spec := query.Build("demo-user", query.Params{
		Status:   "completed",
		Search:   "milk",
		LabelIDs: []uuid.UUID{label},
	})

	where, args := spec.Where(query.Postgres{}, "t", nil)

	assert.Equal(t,
		"t.user_id = $1 AND t.is_deleted = FALSE AND t.status = $2"+
			" AND (strpos(t.title, $3) > 0 OR (t.description IS NOT NULL AND strpos(t.description, $4) > 0))"+
			" AND EXISTS (SELECT 1 FROM task_labels tl WHERE tl.task_id = t.id AND tl.label_id IN ($5))",
		where)
	assert.Equal(t, []any{"demo-user", 1, "milk", "milk", label}, args)
}

func TestSpec_Where_SQLite(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	spec := query.Build("demo-user", query.Params{Status: "unknown", LabelIDs: []uuid.UUID{a, b}})

	where, args := spec.Where(query.SQLite{}, "t", []any{"first"})

	assert.Equal(t,
		"t.user_id = ? AND t.is_deleted = FALSE"+
			" AND EXISTS (SELECT 1 FROM task_labels tl WHERE tl.task_id = t.id AND tl.label_id IN (?, ?))",
		where)
	assert.Equal(t, []any{"first", "demo-user", a, b}, args)
}

func TestSpec_Where_ContinuesNumbering(t *testing.T) {
	spec := query.Build("demo-user", query.Params{})
	where, args := spec.Where(query.Postgres{}, "x", []any{1, 2})

	assert.Equal(t, "x.user_id = $3 AND x.is_deleted = FALSE", where)
	assert.Len(t, args, 3)
}

func TestSpec_OrderBy(t *testing.T) {
	assert.Equal(t, "t.created_at ASC", query.Build("u", query.Params{}).OrderBy("t"))
	assert.Equal(t, "t.due_date DESC NULLS LAST", query.Build("u", query.Params{SortBy: "dueDate", SortOrder: "desc"}).OrderBy("t"))
	assert.Equal(t, "t.due_date ASC NULLS FIRST", query.Build("u", query.Params{SortBy: "DUEDATE"}).OrderBy("t"))
	assert.Equal(t, "t.priority ASC", query.Build("u", query.Params{SortBy: "priority", SortOrder: "up"}).OrderBy("t"))
}
