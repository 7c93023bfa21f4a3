package query

import (
	"fmt"
	"strings"
)

// Dialect описывает различия SQL-диалектов, которые нужны для рендеринга спецификации.
type Dialect interface {
	// Placeholder возвращает плейсхолдер для параметра с номером n (с единицы)
	Placeholder(n int) string
	// Contains - регистрозависимая проверка вхождения подстроки
	Contains(column, placeholder string) string
}

type Postgres struct{}

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) Contains(column, placeholder string) string {
	return fmt.Sprintf("strpos(%s, %s) > 0", column, placeholder)
}

type SQLite struct{}

func (SQLite) Placeholder(int) string { return "?" }

// LIKE в SQLite не учитывает регистр для ASCII, поэтому instr
func (SQLite) Contains(column, placeholder string) string {
	return fmt.Sprintf("instr(%s, %s) > 0", column, placeholder)
}

var sortColumns = map[SortKey]string{
	SortByCreatedAt: "created_at",
	SortByTitle:     "title",
	SortByDueDate:   "due_date",
	SortByUpdatedAt: "updated_at",
	SortByPriority:  "priority",
}

// Where рендерит условие WHERE (без ключевого слова) для таблицы tasks с псевдонимом alias.
// Аргументы нумеруются начиная с len(args)+1, чтобы условие можно было дописать к запросу.
func (s Spec) Where(d Dialect, alias string, args []any) (string, []any) {
	col := func(name string) string { return alias + "." + name }
	next := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}

	conds := []string{
		col("user_id") + " = " + next(s.Tenant),
		col("is_deleted") + " = FALSE",
	}

	if s.Status != nil {
		conds = append(conds, col("status")+" = "+next(int(*s.Status)))
	}

	if s.Search != "" {
		inTitle := d.Contains(col("title"), next(s.Search))
		inDescription := d.Contains(col("description"), next(s.Search))
		conds = append(conds, fmt.Sprintf("(%s OR (%s IS NOT NULL AND %s))", inTitle, col("description"), inDescription))
	}

	if len(s.LabelIDs) > 0 {
		placeholders := make([]string, 0, len(s.LabelIDs))
		for _, id := range s.LabelIDs {
			placeholders = append(placeholders, next(id))
		}
		conds = append(conds, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM task_labels tl WHERE tl.task_id = %s AND tl.label_id IN (%s))",
			col("id"), strings.Join(placeholders, ", "),
		))
	}

	return strings.Join(conds, " AND "), args
}

// OrderBy рендерит единственный ключ сортировки, без дополнительного ключа для равных строк.
// Пустой срок считается меньше любого заданного, как и в Less.
func (s Spec) OrderBy(alias string) string {
	direction, nulls := "ASC", "NULLS FIRST"
	if s.Descending {
		direction, nulls = "DESC", "NULLS LAST"
	}
	if s.SortKey == SortByDueDate {
		return fmt.Sprintf("%s.%s %s %s", alias, sortColumns[s.SortKey], direction, nulls)
	}
	return fmt.Sprintf("%s.%s %s", alias, sortColumns[s.SortKey], direction)
}
