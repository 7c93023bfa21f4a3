package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"todoTracker/internal/config"
	"todoTracker/internal/handlers"
	"todoTracker/internal/logger"
	"todoTracker/internal/middleware"
	"todoTracker/internal/repository/task/breaker"
	"todoTracker/internal/repository/task/inmemory"
	"todoTracker/internal/repository/task/postgres"
	"todoTracker/internal/repository/task/sqlite"
	"todoTracker/internal/service"
	"todoTracker/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// storage - хранилище задач, которое умеет и вычищать удалённые задачи
type storage interface {
	service.TaskRepository
	worker.Purger
}

type App struct {
	config     *config.Config
	server     *http.Server
	router     *chi.Mux
	repository service.TaskRepository
	service    *service.TaskService
	worker     *worker.PurgeWorker
	shutdowns  []func() error // выполняются в обратном порядке
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func() error, 0),
	}
}

func (a *App) Init(ctx context.Context) error {
	if err := logger.Init(logger.Options{
		Development: a.config.Logging.Development,
		Level:       a.config.Logging.Level,
		File:        a.config.Logging.File,
		MaxSizeMB:   a.config.Logging.MaxSizeMB,
		MaxBackups:  a.config.Logging.MaxBackups,
		MaxAgeDays:  a.config.Logging.MaxAgeDays,
	}); err != nil {
		return fmt.Errorf("инициализация логгера: %w", err)
	}
	a.shutdowns = append(a.shutdowns, func() error {
		logger.Info("Завершение работы логгирования...")
		logger.Sync()
		return nil
	})

	store, err := openStorage(ctx, a.config, true)
	if err != nil {
		return err
	}
	a.shutdowns = append(a.shutdowns, func() error {
		logger.Info("Закрытие хранилища...")
		return closeStorage(store)
	})

	a.repository = store
	if a.config.Breaker.Enabled {
		a.repository = breaker.New(store, breaker.Settings{
			MaxFailures: a.config.Breaker.MaxFailures,
			OpenTimeout: a.config.Breaker.OpenTimeout,
			HalfOpenMax: a.config.Breaker.HalfOpenMax,
			Interval:    a.config.Breaker.ResetCounter,
		})
	}

	a.service = service.NewTaskService(a.repository)
	// очистка идёт мимо предохранителя: это фоновая работа, а не запрос клиента
	a.worker = worker.NewPurgeWorker(store,
		&a.config.Worker.PurgeInterval,
		&a.config.Worker.Retention,
		&a.config.Worker.BatchSize,
	)

	a.router = a.newRouter()
	a.server = &http.Server{
		Addr:              a.config.GetServerAddr(),
		Handler:           otelhttp.NewHandler(a.router, "todo-tracker"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Приложение инициализировано",
		zap.String("repository", a.config.Repository.Type),
		zap.Bool("breaker", a.config.Breaker.Enabled),
		zap.String("addr", a.server.Addr))
	return nil
}

func (a *App) newRouter() *chi.Mux {
	taskHandler := handlers.NewTaskHandler(a.service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.config.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-Match", "X-Request-ID", a.config.Tenant.Header},
		ExposedHeaders: []string{"Location", "X-Request-ID", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))
	r.Use(middleware.RateLimit(a.config.Server.RateLimit))
	r.Use(middleware.Timeout(a.config.Server.RequestTimeout))
	r.Use(middleware.Tenant(a.config.Tenant.Header, a.config.Tenant.Default))

	r.Get("/health", taskHandler.HealthCheck)
	r.Route("/api/v1/tasks", taskHandler.Routes)

	return r
}

// Handler отдаёт роутер без сервера, нужен в тестах
func (a *App) Handler() http.Handler {
	return a.router
}

// Run блокируется до отмены ctx или падения сервера, затем останавливает всё.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server: Запуск", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http сервер: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.worker.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server: Остановка")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.server != nil {
		err = multierr.Append(err, a.server.Shutdown(ctx))
	}
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.shutdowns[i]())
	}
	a.shutdowns = nil
	return err
}

// openStorage создаёт хранилище по repository.type
func openStorage(ctx context.Context, cfg *config.Config, migrate bool) (storage, error) {
	switch cfg.Repository.Type {
	case "postgres":
		store, err := postgres.New(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxConns:    int32(cfg.Database.MaxConnections),
			MinConns:    int32(cfg.Database.MinConnections),
			MaxIdleTime: cfg.Database.IdleTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("подключение к postgres: %w", err)
		}
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, fmt.Errorf("миграции postgres: %w", err)
			}
		}
		return store, nil
	case "sqlite":
		store, err := sqlite.New(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("открытие sqlite: %w", err)
		}
		if migrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, fmt.Errorf("миграции sqlite: %w", err)
			}
		}
		return store, nil
	case "inmemory":
		return inmemory.NewTaskStorage(), nil
	default:
		return nil, fmt.Errorf("неизвестный тип хранилища %q", cfg.Repository.Type)
	}
}

func closeStorage(store storage) error {
	if c, ok := store.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

// Migrate применяет (up) или откатывает (down) схему выбранного хранилища.
func Migrate(ctx context.Context, cfg *config.Config, direction string) error {
	type migrator interface {
		Migrate(ctx context.Context) error
		Down(ctx context.Context) error
	}

	store, err := openStorage(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer closeStorage(store)

	m, ok := store.(migrator)
	if !ok {
		logger.Info("Migrations: Хранилище не требует миграций", zap.String("repository", cfg.Repository.Type))
		return nil
	}

	switch direction {
	case "up":
		return m.Migrate(ctx)
	case "down":
		return m.Down(ctx)
	default:
		return fmt.Errorf("неизвестное направление миграции %q: ожидается up или down", direction)
	}
}
