package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"todoTracker/internal/models/task"
	"todoTracker/internal/query"
	"todoTracker/internal/repository"
	"todoTracker/internal/repository/task/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const tenant = "demo-user"

// PostgresTestSuite для интеграционных тестов с PostgreSQL
type PostgresTestSuite struct {
	suite.Suite
	container  testcontainers.Container
	storage    *postgres.Storage
	ctx        context.Context
	connString string
}

// SetupSuite запускается один раз перед всеми тестами
func (s *PostgresTestSuite) SetupSuite() {
	s.ctx = context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(s.T(), err)
	s.container = container

	host, err := container.Host(s.ctx)
	require.NoError(s.T(), err)

	port, err := container.MappedPort(s.ctx, "5432")
	require.NoError(s.T(), err)

	s.connString = fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	s.storage, err = postgres.New(s.ctx, s.connString, postgres.PoolConfig{})
	require.NoError(s.T(), err)

	require.NoError(s.T(), s.storage.Migrate(s.ctx))
}

// TearDownSuite очищает после всех тестов
func (s *PostgresTestSuite) TearDownSuite() {
	if s.storage != nil {
		s.storage.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

// SetupTest очищает таблицы перед каждым тестом
func (s *PostgresTestSuite) SetupTest() {
	conn, err := pgx.Connect(s.ctx, s.connString)
	require.NoError(s.T(), err)
	defer conn.Close(s.ctx)

	_, err = conn.Exec(s.ctx, "TRUNCATE tasks CASCADE")
	require.NoError(s.T(), err)
}

// TestPostgresTestSuite запускает suite
func TestPostgresTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционные тесты в коротком режиме")
	}
	suite.Run(t, new(PostgresTestSuite))
}

func (s *PostgresTestSuite) newTask(title string, at time.Time) *task.Task {
	return task.New(tenant, title, at.UTC().Truncate(time.Microsecond))
}

// TestStorage_Create тестирует создание задачи вместе с метками
func (s *PostgresTestSuite) TestStorage_Create() {
	created := s.newTask("Test Task", time.Now())
	description := "описание"
	created.Description = &description
	label := uuid.New()

	err := s.storage.Create(s.ctx, created, task.Associations(created.ID, []uuid.UUID{label, label}, tenant, created.CreatedAt))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), task.Version(1), created.Version)

	got, err := s.storage.GetByID(s.ctx, tenant, created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Test Task", got.Title)
	assert.Equal(s.T(), description, *got.Description)
	assert.Equal(s.T(), task.StatusPending, got.Status())
	assert.True(s.T(), created.CreatedAt.Equal(got.CreatedAt))

	labels, err := s.storage.LabelsFor(s.ctx, []uuid.UUID{created.ID})
	require.NoError(s.T(), err)
	require.Len(s.T(), labels[created.ID], 1)
	assert.Equal(s.T(), label, labels[created.ID][0].LabelID)
}

// TestStorage_GetByID тестирует изоляцию тенантов
func (s *PostgresTestSuite) TestStorage_GetByID() {
	created := s.newTask("mine", time.Now())
	require.NoError(s.T(), s.storage.Create(s.ctx, created, nil))

	_, err := s.storage.GetByID(s.ctx, "someone-else", created.ID)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)

	_, err = s.storage.GetByID(s.ctx, tenant, uuid.New())
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)
}

// TestStorage_Update тестирует обновление и замену меток
func (s *PostgresTestSuite) TestStorage_Update() {
	created := s.newTask("Original", time.Now())
	first, second := uuid.New(), uuid.New()
	require.NoError(s.T(), s.storage.Create(s.ctx, created, task.Associations(created.ID, []uuid.UUID{first}, tenant, created.CreatedAt)))

	updated := created.Clone()
	updated.Title = "Updated"
	updated.Lifecycle = task.Active(task.StatusCompleted)
	now := time.Now().UTC().Truncate(time.Microsecond)
	updated.UpdatedAt = now
	updated.CompletedAt = &now

	err := s.storage.Update(s.ctx, updated, 1, task.Associations(created.ID, []uuid.UUID{second}, tenant, now))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), task.Version(2), updated.Version)

	got, err := s.storage.GetByID(s.ctx, tenant, created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Updated", got.Title)
	assert.Equal(s.T(), task.StatusCompleted, got.Status())
	require.NotNil(s.T(), got.CompletedAt)

	labels, err := s.storage.LabelsFor(s.ctx, []uuid.UUID{created.ID})
	require.NoError(s.T(), err)
	require.Len(s.T(), labels[created.ID], 1)
	assert.Equal(s.T(), second, labels[created.ID][0].LabelID)
}

// TestStorage_Update_VersionConflict - проигравший не меняет ни задачу, ни метки
func (s *PostgresTestSuite) TestStorage_Update_VersionConflict() {
	created := s.newTask("Original", time.Now())
	label := uuid.New()
	require.NoError(s.T(), s.storage.Create(s.ctx, created, task.Associations(created.ID, []uuid.UUID{label}, tenant, created.CreatedAt)))

	winner := created.Clone()
	winner.Title = "winner"
	require.NoError(s.T(), s.storage.Update(s.ctx, winner, 1, task.Associations(created.ID, []uuid.UUID{label}, tenant, created.CreatedAt)))

	loser := created.Clone()
	loser.Title = "loser"
	err := s.storage.Update(s.ctx, loser, 1, nil)
	assert.ErrorIs(s.T(), err, repository.ErrVersionConflict)

	got, err := s.storage.GetByID(s.ctx, tenant, created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "winner", got.Title)

	labels, err := s.storage.LabelsFor(s.ctx, []uuid.UUID{created.ID})
	require.NoError(s.T(), err)
	assert.Len(s.T(), labels[created.ID], 1)
}

// TestStorage_ConcurrentUpdate - из гонки с одной версией выигрывает ровно один
func (s *PostgresTestSuite) TestStorage_ConcurrentUpdate() {
	created := s.newTask("race", time.Now())
	require.NoError(s.T(), s.storage.Create(s.ctx, created, nil))

	const writers = 5
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			candidate := created.Clone()
			candidate.Title = fmt.Sprintf("writer %d", i)
			errs[i] = s.storage.Update(s.ctx, candidate, 1, nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(s.T(), err, repository.ErrVersionConflict)
	}
	assert.Equal(s.T(), 1, succeeded)
}

// TestStorage_DeleteSoft тестирует мягкое удаление
func (s *PostgresTestSuite) TestStorage_DeleteSoft() {
	created := s.newTask("to delete", time.Now())
	require.NoError(s.T(), s.storage.Create(s.ctx, created, nil))

	stale := created.Clone()
	stale.Lifecycle = task.Deleted(time.Now())
	assert.ErrorIs(s.T(), s.storage.DeleteSoft(s.ctx, stale, 7), repository.ErrVersionConflict)

	deleted := created.Clone()
	deleted.Lifecycle = task.Deleted(time.Now())
	require.NoError(s.T(), s.storage.DeleteSoft(s.ctx, deleted, 1))
	assert.Equal(s.T(), task.Version(2), deleted.Version)

	_, err := s.storage.GetByID(s.ctx, tenant, created.ID)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)

	assert.ErrorIs(s.T(), s.storage.DeleteSoft(s.ctx, deleted, 2), repository.ErrNotFound)
}

// TestStorage_Find тестирует фильтры, сортировку и пагинацию в SQL
func (s *PostgresTestSuite) TestStorage_Find() {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	label := uuid.New()

	for i := 1; i <= 5; i++ {
		t := s.newTask(fmt.Sprintf("Task %d", i), base.Add(time.Duration(i)*time.Minute))
		if i == 3 {
			d := "needle inside"
			t.Description = &d
		}
		var labels []task.LabelAssociation
		if i%2 == 1 {
			labels = task.Associations(t.ID, []uuid.UUID{label}, tenant, base)
		}
		require.NoError(s.T(), s.storage.Create(s.ctx, t, labels))
	}
	require.NoError(s.T(), s.storage.Create(s.ctx, task.New("someone-else", "Task 9", base), nil))

	spec := query.Build(tenant, query.Params{SortBy: "createdAt", SortOrder: "desc"})
	total, err := s.storage.Count(s.ctx, spec)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 5, total)

	page, err := s.storage.Find(s.ctx, spec, 1, 2)
	require.NoError(s.T(), err)
	require.Len(s.T(), page, 2)
	assert.Equal(s.T(), "Task 4", page[0].Title)
	assert.Equal(s.T(), "Task 3", page[1].Title)

	labelled := query.Build(tenant, query.Params{LabelIDs: []uuid.UUID{label, uuid.New()}})
	total, err = s.storage.Count(s.ctx, labelled)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, total)

	search := query.Build(tenant, query.Params{Search: "needle"})
	found, err := s.storage.Find(s.ctx, search, 0, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), found, 1)
	assert.Equal(s.T(), "Task 3", found[0].Title)

	// поиск регистрозависимый
	total, err = s.storage.Count(s.ctx, query.Build(tenant, query.Params{Search: "NEEDLE"}))
	require.NoError(s.T(), err)
	assert.Zero(s.T(), total)

	total, err = s.storage.Count(s.ctx, query.Build(tenant, query.Params{Status: "Completed"}))
	require.NoError(s.T(), err)
	assert.Zero(s.T(), total)
}

// TestStorage_Files тестирует метаданные файлов
func (s *PostgresTestSuite) TestStorage_Files() {
	owner := s.newTask("with files", time.Now())
	require.NoError(s.T(), s.storage.Create(s.ctx, owner, nil))

	file := &task.File{
		ID:           uuid.New(),
		TaskID:       owner.ID,
		OriginalName: "report.pdf",
		StoredName:   "x.pdf",
		Size:         2048,
		ContentType:  "application/pdf",
		Container:    task.DefaultFileContainer,
		Path:         "demo-user/x.pdf",
		UploadedAt:   time.Now().UTC(),
		UploadedBy:   tenant,
	}
	require.NoError(s.T(), s.storage.AddFile(s.ctx, file))

	files, err := s.storage.FilesFor(s.ctx, []uuid.UUID{owner.ID})
	require.NoError(s.T(), err)
	require.Len(s.T(), files[owner.ID], 1)
	assert.Equal(s.T(), "report.pdf", files[owner.ID][0].OriginalName)

	require.NoError(s.T(), s.storage.DeleteFile(s.ctx, owner.ID, file.ID, time.Now()))
	assert.ErrorIs(s.T(), s.storage.DeleteFile(s.ctx, owner.ID, file.ID, time.Now()), repository.ErrNotFound)

	orphan := *file
	orphan.ID = uuid.New()
	orphan.TaskID = uuid.New()
	assert.ErrorIs(s.T(), s.storage.AddFile(s.ctx, &orphan), repository.ErrNotFound)
}

// TestStorage_PurgeDeleted - физическое удаление уносит метки и файлы каскадом
func (s *PostgresTestSuite) TestStorage_PurgeDeleted() {
	old := s.newTask("old", time.Now().Add(-72*time.Hour))
	require.NoError(s.T(), s.storage.Create(s.ctx, old, task.Associations(old.ID, []uuid.UUID{uuid.New()}, tenant, old.CreatedAt)))
	old.Lifecycle = task.Deleted(time.Now().Add(-48 * time.Hour))
	require.NoError(s.T(), s.storage.DeleteSoft(s.ctx, old, 1))

	alive := s.newTask("alive", time.Now())
	require.NoError(s.T(), s.storage.Create(s.ctx, alive, nil))

	purged, err := s.storage.PurgeDeleted(s.ctx, time.Now().Add(-24*time.Hour), 100)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, purged)

	labels, err := s.storage.LabelsFor(s.ctx, []uuid.UUID{old.ID})
	require.NoError(s.T(), err)
	assert.Empty(s.T(), labels[old.ID])

	_, err = s.storage.GetByID(s.ctx, tenant, alive.ID)
	assert.NoError(s.T(), err)
}

func (s *PostgresTestSuite) TestStorage_HealthCheck() {
	assert.NoError(s.T(), s.storage.HealthCheck(s.ctx))
}

func (s *PostgresTestSuite) TestStorage_CancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	created := s.newTask("never", time.Now())
	err := s.storage.Create(ctx, created, nil)
	assert.ErrorIs(s.T(), err, context.Canceled)

	_, err = s.storage.GetByID(s.ctx, tenant, created.ID)
	assert.ErrorIs(s.T(), err, repository.ErrNotFound)
}

// Unit тесты (без базы данных)
func TestStorage_New(t *testing.T) {
	_, err := postgres.New(context.Background(), "invalid", postgres.PoolConfig{})
	assert.Error(t, err)
}

func TestStorage_Close(t *testing.T) {
	// Close на незаполненном хранилище не паникует
	storage := &postgres.Storage{}
	assert.NotPanics(t, func() {
		storage.Close()
	})
}
