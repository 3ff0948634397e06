package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	require.NoError(t, Reload(""))
	cfg := Get()

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "cproto://localhost:6534/legal_analyzer", cfg.Reindexer.DSN)
	assert.Equal(t, "gpt-4o", cfg.AI.DefaultModel)
	assert.Equal(t, "claude-3-sonnet-20240229", cfg.AI.FallbackModel)
	assert.Equal(t, 3000, cfg.Chunker.MaxTokens)
	assert.Equal(t, 200, cfg.Chunker.OverlapTokens)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 16, cfg.Cache.Shards)
	assert.Empty(t, cfg.Notify.WebhookURL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_AI_DEFAULT_MODEL", "gpt-4-turbo")
	t.Setenv("APP_QUEUE_WORKERS", "8")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	require.NoError(t, Reload(""))
	cfg := Get()

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "gpt-4-turbo", cfg.AI.DefaultModel)
	assert.Equal(t, 8, cfg.Queue.Workers)
	assert.Equal(t, "sk-test", cfg.AI.OpenAIAPIKey)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("APP_CHUNKER_OVERLAP_TOKENS", "5000")

	err := Reload("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunker.overlap_tokens")
}
