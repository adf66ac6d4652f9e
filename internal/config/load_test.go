package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradloop/taskwell/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Redis.Addr)

	assert.Equal(t, 2, cfg.Worker.Count)
	assert.Equal(t, []string{"default"}, cfg.Worker.Queues)
	assert.Equal(t, time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.Worker.StuckTaskAge)
	assert.Equal(t, 5*time.Minute, cfg.Worker.StuckTaskCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.Worker.ShutdownTimeout)

	assert.Equal(t, "fail_open", cfg.Idempotency.FailureMode)
	assert.Equal(t, time.Hour, cfg.Idempotency.DefaultTTL)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TASKWELL_SERVER_PORT", "9090")
	t.Setenv("TASKWELL_SERVER_LOG_LEVEL", "debug")
	t.Setenv("TASKWELL_WORKER_COUNT", "8")
	t.Setenv("TASKWELL_WORKER_POLL_INTERVAL", "250ms")
	t.Setenv("TASKWELL_IDEMPOTENCY_FAILURE_MODE", "fail_closed")
	t.Setenv("TASKWELL_REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 8, cfg.Worker.Count)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.PollInterval)
	assert.Equal(t, "fail_closed", cfg.Idempotency.FailureMode)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_Validation(t *testing.T) {
	t.Run("rejects unknown log level", func(t *testing.T) {
		t.Setenv("TASKWELL_SERVER_LOG_LEVEL", "verbose")

		_, err := config.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("rejects unknown idempotency failure mode", func(t *testing.T) {
		t.Setenv("TASKWELL_IDEMPOTENCY_FAILURE_MODE", "fail_sometimes")

		_, err := config.Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("rejects zero worker count", func(t *testing.T) {
		t.Setenv("TASKWELL_WORKER_COUNT", "0")

		_, err := config.Load()
		require.Error(t, err)
	})

	t.Run("rejects malformed database url", func(t *testing.T) {
		t.Setenv("TASKWELL_DATABASE_URL", "not a uri")

		_, err := config.Load()
		require.Error(t, err)
	})
}
