package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Empty(t, cfg.OpenAI.APIKey)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, 300, cfg.OpenAI.MaxTokens)
	assert.Equal(t, 0.7, cfg.OpenAI.Temperature)
	assert.Equal(t, "tasks", cfg.Worker.Queue)
	assert.Equal(t, 3, cfg.Worker.MaxRetry)
	assert.Equal(t, 3600, cfg.Task.ResultTTLSeconds)
	assert.Equal(t, 10, cfg.Task.FallbackDelaySeconds)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("TASK_PENDING_TTL_HOURS", "48")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 48, cfg.Task.PendingTTLHours)
}

func TestReadSecretFromFile(t *testing.T) {
	secretFile := filepath.Join(t.TempDir(), "openai_key")
	require.NoError(t, os.WriteFile(secretFile, []byte("sk-from-file\n"), 0o600))

	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY_FILE", secretFile)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-from-file", cfg.OpenAI.APIKey)
}
