// Package sqlite - хранилище задач во встраиваемой БД SQLite (modernc.org/sqlite, без cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"todoTracker/internal/logger"
	"todoTracker/internal/migrations"
	"todoTracker/internal/models/task"
	"todoTracker/internal/query"
	repo "todoTracker/internal/repository"

	"github.com/golang-migrate/migrate/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"
	slowQuery  = 100 * time.Millisecond

	// фиксированная ширина и UTC, чтобы строки сравнивались как время
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

	taskColumns = `t.id, t.user_id, t.title, t.description, t.status, t.priority, t.due_date,
		t.created_at, t.updated_at, t.completed_at, t.is_deleted, t.deleted_at, t.version`
)

type Storage struct {
	db  *sql.DB
	dsn string
}

func dsnFor(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

func New(ctx context.Context, path string) (*Storage, error) {
	dsn := dsnFor(path)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		logger.Error("Repository: Ошибка открытия SQLite", err)
		return nil, fmt.Errorf("открытие sqlite: %w", err)
	}
	// SQLite допускает одного писателя, запросы идут через одно соединение
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное открытие SQLite", zap.String("path", path))
	return &Storage{db: db, dsn: dsn}, nil
}

func (s *Storage) Close() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		logger.Error("Repository: Закрытие SQLite", err)
		return
	}
	logger.Info("Repository: SQLite закрыта")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	logger.Debug("Repository: Соединение стабильно")
	return nil
}

func logSlow(op string, start time.Time) {
	if elapsed := time.Since(start); elapsed > slowQuery {
		logger.Warn("Repository: Медленная операция", zap.String("op", op), zap.Duration("ms", elapsed))
	}
}

func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task, labels []task.LabelAssociation) error {
	start := time.Now()
	defer logSlow("create", start)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback()

	status, isDeleted, deletedAt := flatten(taskToCreate.Lifecycle)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, status, priority, due_date,
				created_at, updated_at, completed_at, is_deleted, deleted_at, version)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		taskToCreate.ID,
		taskToCreate.Tenant,
		taskToCreate.Title,
		taskToCreate.Description,
		status,
		int(taskToCreate.Priority),
		encodeTimePtr(taskToCreate.DueDate),
		encodeTime(taskToCreate.CreatedAt),
		encodeTime(taskToCreate.UpdatedAt),
		encodeTimePtr(taskToCreate.CompletedAt),
		isDeleted,
		encodeTimePtr(deletedAt),
	)
	if err != nil {
		logger.Error("Repository: Создание задачи", err, zap.String("task_id", taskToCreate.ID.String()))
		return fmt.Errorf("создание задачи: %w", err)
	}

	if err := insertLabels(ctx, tx, labels); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}

	taskToCreate.Version = 1
	return nil
}

func (s *Storage) Update(ctx context.Context, taskToUpdate *task.Task, expected task.Version, labels []task.LabelAssociation) error {
	start := time.Now()
	defer logSlow("update", start)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback()

	status, isDeleted, deletedAt := flatten(taskToUpdate.Lifecycle)
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks
			SET title = ?,
				description = ?,
				status = ?,
				priority = ?,
				due_date = ?,
				updated_at = ?,
				completed_at = ?,
				is_deleted = ?,
				deleted_at = ?,
				version = version + 1
			WHERE id = ? AND user_id = ? AND is_deleted = FALSE AND version = ?`,
		taskToUpdate.Title,
		taskToUpdate.Description,
		status,
		int(taskToUpdate.Priority),
		encodeTimePtr(taskToUpdate.DueDate),
		encodeTime(taskToUpdate.UpdatedAt),
		encodeTimePtr(taskToUpdate.CompletedAt),
		isDeleted,
		encodeTimePtr(deletedAt),
		taskToUpdate.ID,
		taskToUpdate.Tenant,
		int64(expected),
	)
	if err != nil {
		logger.Error("Repository: Обновление задачи", err, zap.String("task_id", taskToUpdate.ID.String()))
		return fmt.Errorf("обновление задачи: %w", err)
	}
	affected, err := rowsAffected(res, "обновление задачи")
	if err != nil {
		return err
	}
	if affected == 0 {
		logger.Warn("Repository: Конфликт версий при обновлении",
			zap.String("task_id", taskToUpdate.ID.String()),
			zap.Int64("expected_version", int64(expected)))
		return repo.ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_labels WHERE task_id = ?`, taskToUpdate.ID); err != nil {
		return fmt.Errorf("удаление меток: %w", err)
	}
	if err := insertLabels(ctx, tx, labels); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}

	taskToUpdate.Version = expected + 1
	return nil
}

// rowsAffected не выдаёт сбой драйвера за отсутствие строк
func rowsAffected(res sql.Result, op string) (int64, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		logger.Error("Repository: Число затронутых строк", err, zap.String("operation", op))
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}

func insertLabels(ctx context.Context, tx *sql.Tx, labels []task.LabelAssociation) error {
	if len(labels) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO task_labels (task_id, label_id, created_at, created_by) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("подготовка вставки меток: %w", err)
	}
	defer stmt.Close()

	for _, l := range labels {
		if _, err := stmt.ExecContext(ctx, l.TaskID, l.LabelID, encodeTime(l.CreatedAt), l.CreatedBy); err != nil {
			logger.Error("Repository: Запись меток", err, zap.String("task_id", l.TaskID.String()))
			return fmt.Errorf("запись меток: %w", err)
		}
	}
	return nil
}

func (s *Storage) DeleteSoft(ctx context.Context, taskToDelete *task.Task, expected task.Version) error {
	start := time.Now()
	defer logSlow("delete_soft", start)

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks
			SET status = ?,
				is_deleted = TRUE,
				deleted_at = ?,
				updated_at = ?,
				completed_at = NULL,
				version = version + 1
			WHERE id = ? AND user_id = ? AND is_deleted = FALSE AND version = ?`,
		int(task.StatusDeleted),
		encodeTimePtr(taskToDelete.Lifecycle.DeletedAt()),
		encodeTime(taskToDelete.UpdatedAt),
		taskToDelete.ID,
		taskToDelete.Tenant,
		int64(expected),
	)
	if err != nil {
		logger.Error("Repository: Мягкое удаление задачи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("мягкое удаление: %w", err)
	}

	affected, err := rowsAffected(res, "мягкое удаление")
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, getErr := s.GetByID(ctx, taskToDelete.Tenant, taskToDelete.ID); getErr != nil {
			return getErr
		}
		return repo.ErrVersionConflict
	}

	taskToDelete.Version = expected + 1
	return nil
}

func (s *Storage) GetByID(ctx context.Context, tenant string, id uuid.UUID) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.id = ? AND t.user_id = ? AND t.is_deleted = FALSE`,
		id, tenant)

	found, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Получение задачи", err, zap.String("task_id", id.String()))
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return found, nil
}

func (s *Storage) Find(ctx context.Context, spec query.Spec, skip, take int) ([]*task.Task, error) {
	start := time.Now()
	defer logSlow("find", start)

	where, args := spec.Where(query.SQLite{}, "t", nil)
	args = append(args, take, skip)

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM tasks t WHERE %s ORDER BY %s LIMIT ? OFFSET ?`,
			taskColumns, where, spec.OrderBy("t")),
		args...)
	if err != nil {
		logger.Error("Repository: Поиск задач", err)
		return nil, fmt.Errorf("поиск задач: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("чтение задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("перебор задач: %w", err)
	}
	return tasks, nil
}

func (s *Storage) Count(ctx context.Context, spec query.Spec) (int, error) {
	where, args := spec.Where(query.SQLite{}, "t", nil)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks t WHERE `+where, args...).Scan(&total); err != nil {
		logger.Error("Repository: Подсчёт задач", err)
		return 0, fmt.Errorf("подсчёт задач: %w", err)
	}
	return total, nil
}

func inClause(ids []uuid.UUID) (string, []any) {
	placeholders := make([]string, 0, len(ids))
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	return strings.Join(placeholders, ", "), args
}

func (s *Storage) LabelsFor(ctx context.Context, taskIDs []uuid.UUID) (map[uuid.UUID][]task.LabelAssociation, error) {
	res := make(map[uuid.UUID][]task.LabelAssociation, len(taskIDs))
	if len(taskIDs) == 0 {
		return res, nil
	}

	in, args := inClause(taskIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, label_id, created_at, created_by FROM task_labels
			WHERE task_id IN (`+in+`) ORDER BY rowid`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("получение меток: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l         task.LabelAssociation
			createdAt string
		)
		if err := rows.Scan(&l.TaskID, &l.LabelID, &createdAt, &l.CreatedBy); err != nil {
			return nil, fmt.Errorf("чтение метки: %w", err)
		}
		if l.CreatedAt, err = decodeTime(createdAt); err != nil {
			return nil, err
		}
		res[l.TaskID] = append(res[l.TaskID], l)
	}
	return res, rows.Err()
}

func (s *Storage) FilesFor(ctx context.Context, taskIDs []uuid.UUID) (map[uuid.UUID][]task.File, error) {
	res := make(map[uuid.UUID][]task.File, len(taskIDs))
	if len(taskIDs) == 0 {
		return res, nil
	}

	in, args := inClause(taskIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, original_name, stored_name, size, content_type, container, path,
				uploaded_at, uploaded_by, checksum
			FROM task_files
			WHERE task_id IN (`+in+`) AND is_deleted = FALSE
			ORDER BY uploaded_at`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("получение файлов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f          task.File
			uploadedAt string
			checksum   sql.NullString
		)
		err := rows.Scan(&f.ID, &f.TaskID, &f.OriginalName, &f.StoredName, &f.Size, &f.ContentType,
			&f.Container, &f.Path, &uploadedAt, &f.UploadedBy, &checksum)
		if err != nil {
			return nil, fmt.Errorf("чтение файла: %w", err)
		}
		if f.UploadedAt, err = decodeTime(uploadedAt); err != nil {
			return nil, err
		}
		if checksum.Valid {
			f.Checksum = &checksum.String
		}
		res[f.TaskID] = append(res[f.TaskID], f)
	}
	return res, rows.Err()
}

func (s *Storage) AddFile(ctx context.Context, file *task.File) error {
	// внешний ключ в SQLite не даёт кода ошибки, поэтому вставляем только при наличии задачи
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO task_files (id, task_id, original_name, stored_name, size, content_type, container, path,
				uploaded_at, uploaded_by, is_deleted, deleted_at, checksum)
			SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, NULL, ?
			WHERE EXISTS (SELECT 1 FROM tasks WHERE id = ?)`,
		file.ID, file.TaskID, file.OriginalName, file.StoredName, file.Size, file.ContentType,
		file.Container, file.Path, encodeTime(file.UploadedAt), file.UploadedBy, file.Checksum,
		file.TaskID,
	)
	if err != nil {
		logger.Error("Repository: Добавление файла", err, zap.String("task_id", file.TaskID.String()))
		return fmt.Errorf("добавление файла: %w", err)
	}
	affected, err := rowsAffected(res, "добавление файла")
	if err != nil {
		return err
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteFile(ctx context.Context, taskID, fileID uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_files SET is_deleted = TRUE, deleted_at = ?
			WHERE id = ? AND task_id = ? AND is_deleted = FALSE`,
		encodeTime(at), fileID, taskID)
	if err != nil {
		logger.Error("Repository: Удаление файла", err, zap.String("file_id", fileID.String()))
		return fmt.Errorf("удаление файла: %w", err)
	}
	affected, err := rowsAffected(res, "удаление файла")
	if err != nil {
		return err
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Storage) PurgeDeleted(ctx context.Context, before time.Time, limit int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks
			WHERE id IN (
				SELECT id FROM tasks
				WHERE is_deleted = TRUE AND deleted_at < ?
				ORDER BY deleted_at
				LIMIT ?
			)`,
		encodeTime(before), limit)
	if err != nil {
		logger.Error("Repository: Полное удаление задач", err)
		return 0, fmt.Errorf("полное удаление: %w", err)
	}
	affected, err := rowsAffected(res, "полное удаление")
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Migrate открывает отдельное соединение: мигратор закрывает его сам.
func (s *Storage) Migrate(ctx context.Context) error {
	return s.withMigrator(migrations.Up)
}

func (s *Storage) Down(ctx context.Context) error {
	return s.withMigrator(migrations.Down)
}

func (s *Storage) withMigrator(run func(*migrate.Migrate) error) error {
	db, err := sql.Open(driverName, s.dsn)
	if err != nil {
		return fmt.Errorf("открытие sqlite для миграций: %w", err)
	}

	m, err := migrations.SQLite(db)
	if err != nil {
		db.Close()
		logger.Error("Repository: Подготовка миграций", err)
		return err
	}
	defer m.Close()

	return run(m)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
	var (
		t           task.Task
		description sql.NullString
		status      int
		priority    int
		dueDate     sql.NullString
		createdAt   string
		updatedAt   string
		completedAt sql.NullString
		isDeleted   bool
		deletedAt   sql.NullString
		version     int64
	)

	err := row.Scan(&t.ID, &t.Tenant, &t.Title, &description, &status, &priority, &dueDate,
		&createdAt, &updatedAt, &completedAt, &isDeleted, &deletedAt, &version)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		t.Description = &description.String
	}
	if t.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, err
	}
	if t.DueDate, err = decodeNullTime(dueDate); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = decodeNullTime(completedAt); err != nil {
		return nil, err
	}
	deleted, err := decodeNullTime(deletedAt)
	if err != nil {
		return nil, err
	}

	t.Lifecycle, err = task.LifecycleFromColumns(task.Status(status), isDeleted, deleted, t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Priority = task.Priority(priority)
	t.Version = task.Version(version)
	return &t, nil
}

func flatten(l task.Lifecycle) (int, bool, *time.Time) {
	return int(l.Status()), l.IsDeleted(), l.DeletedAt()
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func encodeTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encodeTime(*t)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("разбор времени %q: %w", s, err)
	}
	return t, nil
}

func decodeNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := decodeTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
