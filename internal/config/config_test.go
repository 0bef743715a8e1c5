package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("REDIS_DB", "")
	t.Setenv("RENDERER_WORKERS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Equal(t, 30*time.Second, cfg.App.RequestTimeout())
	assert.Equal(t, "visits:changed", cfg.Realtime.Channel)
	assert.Equal(t, 2, cfg.Renderer.Workers)
	assert.Equal(t, "migrations", cfg.Postgres.MigrationsDir)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("NOTIFY_TIMEOUT_SECONDS", "4")
	t.Setenv("POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("REALTIME_HEARTBEAT_SECONDS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, 4*time.Second, cfg.Notification.Timeout())
	assert.False(t, cfg.Postgres.RunMigrations)
	assert.Equal(t, 25*time.Second, cfg.Realtime.Heartbeat())
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	assert.Error(t, err)
}

func TestSecondsNonPositiveIsZero(t *testing.T) {
	assert.Equal(t, time.Duration(0), RendererConfig{TimeoutSeconds: -1}.Timeout())
}

func TestLoggerInheritsAppIdentity(t *testing.T) {
	t.Setenv("APP_NAME", "visit-service-test")
	t.Setenv("APP_VERSION", "1.2.3")
	t.Setenv("LOG_ENCODING", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "visit-service-test", cfg.Logger.Service)
	assert.Equal(t, "1.2.3", cfg.Logger.Version)
	assert.Equal(t, "console", cfg.Logger.Encoding)
}
