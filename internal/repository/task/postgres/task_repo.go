package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"todoTracker/internal/logger"
	"todoTracker/internal/migrations"
	"todoTracker/internal/models/task"
	"todoTracker/internal/query"
	repo "todoTracker/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	slowQuery = 100 * time.Millisecond

	// код ошибки нарушения внешнего ключа
	foreignKeyViolation = "23503"

	taskColumns = `t.id, t.user_id, t.title, t.description, t.status, t.priority, t.due_date,
		t.created_at, t.updated_at, t.completed_at, t.is_deleted, t.deleted_at, t.version`
)

type Storage struct {
	pool *pgxpool.Pool
}

type PoolConfig struct {
	MaxConns    int32
	MinConns    int32
	MaxIdleTime time.Duration
}

func New(ctx context.Context, connString string, poolCfg PoolConfig) (*Storage, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5
	if poolCfg.MaxConns > 0 {
		config.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		config.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxIdleTime > 0 {
		config.MaxConnIdleTime = poolCfg.MaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	if s.pool == nil {
		return
	}
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	if err != nil {
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

// Create пишет задачу и её метки одной транзакцией.
func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task, labels []task.LabelAssociation) error {
	start := time.Now()
	defer logSlow("create", start)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO tasks (id, user_id, title, description, status, priority, due_date,
				created_at, updated_at, completed_at, is_deleted, deleted_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)`

	status, isDeleted, deletedAt := flatten(taskToCreate.Lifecycle)
	_, err = tx.Exec(ctx, query,
		taskToCreate.ID,
		taskToCreate.Tenant,
		taskToCreate.Title,
		taskToCreate.Description,
		status,
		int16(taskToCreate.Priority),
		taskToCreate.DueDate,
		taskToCreate.CreatedAt,
		taskToCreate.UpdatedAt,
		taskToCreate.CompletedAt,
		isDeleted,
		deletedAt,
	)
	if err != nil {
		logger.Error("Repository: Создание задачи", err, zap.String("task_id", taskToCreate.ID.String()))
		return fmt.Errorf("создание задачи: %w", err)
	}

	if err := insertLabels(ctx, tx, labels); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}

	taskToCreate.Version = 1
	return nil
}

// Update перезаписывает задачу и набор её меток, если версия в БД равна expected.
func (s *Storage) Update(ctx context.Context, taskToUpdate *task.Task, expected task.Version, labels []task.LabelAssociation) error {
	start := time.Now()
	defer logSlow("update", start)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE tasks
			SET title = $1,
				description = $2,
				status = $3,
				priority = $4,
				due_date = $5,
				updated_at = $6,
				completed_at = $7,
				is_deleted = $8,
				deleted_at = $9,
				version = version + 1
			WHERE id = $10 AND user_id = $11 AND is_deleted = FALSE AND version = $12
			RETURNING version`

	status, isDeleted, deletedAt := flatten(taskToUpdate.Lifecycle)
	var version int64
	err = tx.QueryRow(ctx, query,
		taskToUpdate.Title,
		taskToUpdate.Description,
		status,
		int16(taskToUpdate.Priority),
		taskToUpdate.DueDate,
		taskToUpdate.UpdatedAt,
		taskToUpdate.CompletedAt,
		isDeleted,
		deletedAt,
		taskToUpdate.ID,
		taskToUpdate.Tenant,
		int64(expected),
	).Scan(&version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Warn("Repository: Конфликт версий при обновлении",
				zap.String("task_id", taskToUpdate.ID.String()),
				zap.Int64("expected_version", int64(expected)))
			return repo.ErrVersionConflict
		}
		logger.Error("Repository: Обновление задачи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("обновление задачи: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM task_labels WHERE task_id = $1`, taskToUpdate.ID); err != nil {
		return fmt.Errorf("удаление меток: %w", err)
	}
	if err := insertLabels(ctx, tx, labels); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("фиксация транзакции: %w", err)
	}

	taskToUpdate.Version = task.Version(version)
	return nil
}

func insertLabels(ctx context.Context, tx pgx.Tx, labels []task.LabelAssociation) error {
	if len(labels) == 0 {
		return nil
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"task_labels"},
		[]string{"task_id", "label_id", "created_at", "created_by"},
		pgx.CopyFromSlice(len(labels), func(i int) ([]any, error) {
			l := labels[i]
			return []any{l.TaskID, l.LabelID, l.CreatedAt, l.CreatedBy}, nil
		}),
	)
	if err != nil {
		logger.Error("Repository: Запись меток", err, zap.Int("count", len(labels)))
		return fmt.Errorf("запись меток: %w", err)
	}
	return nil
}

// мягкое удаление задачи
func (s *Storage) DeleteSoft(ctx context.Context, taskToDelete *task.Task, expected task.Version) error {
	start := time.Now()
	defer logSlow("delete_soft", start)

	query := `UPDATE tasks
				SET status = $1,
				is_deleted = TRUE,
				deleted_at = $2,
				updated_at = $3,
				completed_at = NULL,
				version = version + 1
			WHERE id = $4 AND user_id = $5 AND is_deleted = FALSE AND version = $6
			RETURNING version`

	var version int64
	err := s.pool.QueryRow(ctx, query,
		int16(task.StatusDeleted),
		taskToDelete.Lifecycle.DeletedAt(),
		taskToDelete.UpdatedAt,
		taskToDelete.ID,
		taskToDelete.Tenant,
		int64(expected),
	).Scan(&version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// строки нет совсем или изменилась версия
			if _, getErr := s.GetByID(ctx, taskToDelete.Tenant, taskToDelete.ID); getErr != nil {
				return getErr
			}
			logger.Warn("Repository: Конфликт версий при мягком удалении",
				zap.String("task_id", taskToDelete.ID.String()),
				zap.Int64("expected_version", int64(expected)))
			return repo.ErrVersionConflict
		}

		logger.Error("Repository: Мягкое удаление задачи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("мягкое удаление: %w", err)
	}

	taskToDelete.Version = task.Version(version)
	return nil
}

func (s *Storage) GetByID(ctx context.Context, tenant string, id uuid.UUID) (*task.Task, error) {
	start := time.Now()
	defer logSlow("get_by_id", start)

	query := `SELECT ` + taskColumns + `
			FROM tasks t
			WHERE t.id = $1 AND t.user_id = $2 AND t.is_deleted = FALSE`

	found, err := scanTask(s.pool.QueryRow(ctx, query, id, tenant))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

	where, args := spec.Where(query.Postgres{}, "t", nil)
	args = append(args, skip, take)
	sql := fmt.Sprintf(`SELECT %s FROM tasks t WHERE %s ORDER BY %s OFFSET $%d LIMIT $%d`,
		taskColumns, where, spec.OrderBy("t"), len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
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
	start := time.Now()
	defer logSlow("count", start)

	where, args := spec.Where(query.Postgres{}, "t", nil)

	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks t WHERE `+where, args...).Scan(&total)
	if err != nil {
		logger.Error("Repository: Подсчёт задач", err)
		return 0, fmt.Errorf("подсчёт задач: %w", err)
	}
	return total, nil
}

func (s *Storage) LabelsFor(ctx context.Context, taskIDs []uuid.UUID) (map[uuid.UUID][]task.LabelAssociation, error) {
	res := make(map[uuid.UUID][]task.LabelAssociation, len(taskIDs))
	if len(taskIDs) == 0 {
		return res, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT task_id, label_id, created_at, created_by
			FROM task_labels
			WHERE task_id = ANY($1::uuid[])
			ORDER BY created_at, label_id`,
		idStrings(taskIDs))
	if err != nil {
		return nil, fmt.Errorf("получение меток: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l task.LabelAssociation
		if err := rows.Scan(&l.TaskID, &l.LabelID, &l.CreatedAt, &l.CreatedBy); err != nil {
			return nil, fmt.Errorf("чтение метки: %w", err)
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

	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, original_name, stored_name, size, content_type, container, path,
				uploaded_at, uploaded_by, is_deleted, deleted_at, checksum
			FROM task_files
			WHERE task_id = ANY($1::uuid[]) AND is_deleted = FALSE
			ORDER BY uploaded_at`,
		idStrings(taskIDs))
	if err != nil {
		return nil, fmt.Errorf("получение файлов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f task.File
		err := rows.Scan(&f.ID, &f.TaskID, &f.OriginalName, &f.StoredName, &f.Size, &f.ContentType,
			&f.Container, &f.Path, &f.UploadedAt, &f.UploadedBy, &f.IsDeleted, &f.DeletedAt, &f.Checksum)
		if err != nil {
			return nil, fmt.Errorf("чтение файла: %w", err)
		}
		res[f.TaskID] = append(res[f.TaskID], f)
	}
	return res, rows.Err()
}

func (s *Storage) AddFile(ctx context.Context, file *task.File) error {
	start := time.Now()
	defer logSlow("add_file", start)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_files (id, task_id, original_name, stored_name, size, content_type, container, path,
				uploaded_at, uploaded_by, is_deleted, deleted_at, checksum)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NULL, $11)`,
		file.ID, file.TaskID, file.OriginalName, file.StoredName, file.Size, file.ContentType,
		file.Container, file.Path, file.UploadedAt, file.UploadedBy, file.Checksum,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return repo.ErrNotFound
		}
		logger.Error("Repository: Добавление файла", err, zap.String("task_id", file.TaskID.String()))
		return fmt.Errorf("добавление файла: %w", err)
	}
	return nil
}

func (s *Storage) DeleteFile(ctx context.Context, taskID, fileID uuid.UUID, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE task_files SET is_deleted = TRUE, deleted_at = $1
			WHERE id = $2 AND task_id = $3 AND is_deleted = FALSE`,
		at, fileID, taskID)
	if err != nil {
		logger.Error("Repository: Удаление файла", err, zap.String("file_id", fileID.String()))
		return fmt.Errorf("удаление файла: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// PurgeDeleted физически удаляет задачи, удалённые раньше before. Метки и файлы уходят каскадом.
func (s *Storage) PurgeDeleted(ctx context.Context, before time.Time, limit int) (int, error) {
	start := time.Now()
	defer logSlow("purge", start)

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM tasks
			WHERE id IN (
				SELECT id FROM tasks
				WHERE is_deleted = TRUE AND deleted_at < $1
				ORDER BY deleted_at
				LIMIT $2
			)`,
		before, limit)
	if err != nil {
		logger.Error("Repository: Полное удаление задач", err)
		return 0, fmt.Errorf("полное удаление: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Storage) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	m, err := migrations.Postgres(db)
	if err != nil {
		logger.Error("Repository: Подготовка миграций", err)
		return err
	}
	defer m.Close()

	return migrations.Up(m)
}

func (s *Storage) Down(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	m, err := migrations.Postgres(db)
	if err != nil {
		logger.Error("Repository: Подготовка миграций", err)
		return err
	}
	defer m.Close()

	return migrations.Down(m)
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t         task.Task
		status    int16
		priority  int16
		isDeleted bool
		deletedAt *time.Time
		version   int64
	)

	err := row.Scan(&t.ID, &t.Tenant, &t.Title, &t.Description, &status, &priority, &t.DueDate,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt, &isDeleted, &deletedAt, &version)
	if err != nil {
		return nil, err
	}

	t.Lifecycle, err = task.LifecycleFromColumns(task.Status(status), isDeleted, deletedAt, t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Priority = task.Priority(priority)
	t.Version = task.Version(version)
	return &t, nil
}

func flatten(l task.Lifecycle) (int16, bool, *time.Time) {
	return int16(l.Status()), l.IsDeleted(), l.DeletedAt()
}

func idStrings(ids []uuid.UUID) []string {
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		res = append(res, id.String())
	}
	return res
}
