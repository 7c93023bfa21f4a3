// Package migrations хранит схему БД для обоих диалектов и применяет её через golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"todoTracker/internal/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Postgres готовит мигратор поверх открытого *sql.DB (pgx stdlib).
func Postgres(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("драйвер миграций postgres: %w", err)
	}
	return newMigrate("postgres", "pgx5", driver)
}

// SQLite готовит мигратор для базы modernc.org/sqlite.
// Close мигратора закрывает и db, поэтому сюда передаётся отдельное соединение.
func SQLite(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("драйвер миграций sqlite: %w", err)
	}
	return newMigrate("sqlite", "sqlite", driver)
}

func newMigrate(dir, name string, driver database.Driver) (*migrate.Migrate, error) {
	source, err := iofs.New(files, dir)
	if err != nil {
		return nil, fmt.Errorf("источник миграций %s: %w", dir, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		return nil, fmt.Errorf("создание мигратора: %w", err)
	}
	return m, nil
}

func Up(m *migrate.Migrate) error {
	logger.Info("Migrations: Применение миграций")
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("Migrations: Схема актуальна")
			return nil
		}
		return fmt.Errorf("применение миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations: Миграции применены", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func Down(m *migrate.Migrate) error {
	logger.Info("Migrations: Откат миграций")
	if err := m.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("откат миграций: %w", err)
	}
	logger.Info("Migrations: Миграции откачены")
	return nil
}
