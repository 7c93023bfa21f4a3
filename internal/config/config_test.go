package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"todoTracker/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: "9090"
repository:
  type: sqlite
database:
  sqlite_path: /tmp/tasks.db
worker:
  retention: 72h
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.GetServerAddr())
	assert.Equal(t, "sqlite", cfg.Repository.Type)
	assert.Equal(t, "/tmp/tasks.db", cfg.Database.SQLitePath)
	assert.Equal(t, 72*time.Hour, cfg.Worker.Retention)
	// значения по умолчанию
	assert.Equal(t, "demo-user", cfg.Tenant.Default)
	assert.Equal(t, "X-User-ID", cfg.Tenant.Header)
	assert.Equal(t, 10, cfg.Database.MaxConnections)
	assert.Equal(t, 5*time.Minute, cfg.Database.IdleTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  port: \"9090\"\n")
	t.Setenv("TASKS_SERVER_PORT", "7070")
	t.Setenv("TASKS_TENANT_DEFAULT", "ops")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, "ops", cfg.Tenant.Default)
}

func TestLoad_UnknownRepository(t *testing.T) {
	path := writeConfig(t, "repository:\n  type: mongo\n")

	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestConfig_YAML(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "level: debug")
	assert.Contains(t, string(out), "type: inmemory")
}
