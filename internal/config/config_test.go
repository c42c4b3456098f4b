package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 10s
ai:
  backend: "openai"
  openai:
    api_key: "file-key"
    model: "gpt-4o"
cost:
  monthly_limit_usd: 25.0
game:
  reveal_interval: 500ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "openai", cfg.AI.Backend)
	assert.Equal(t, "gpt-4o", cfg.AI.OpenAI.Model)
	assert.InDelta(t, 25.0, cfg.Cost.MonthlyLimitUSD, 1e-12)
	assert.Equal(t, 500*time.Millisecond, cfg.Game.RevealInterval)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dummy", cfg.AI.Backend)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.OpenAI.Model)
	assert.InDelta(t, 0.8, cfg.AI.OpenAI.Temperature, 1e-12)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.Embedding.Model)
	assert.Equal(t, 30*time.Second, cfg.AI.GeminiCLI.Timeout)
	assert.Equal(t, 100, cfg.Memory.MaxVectors)
	assert.Equal(t, 3, cfg.Memory.SearchLimit)
	assert.InDelta(t, 0.1, cfg.Memory.SimilarityThreshold, 1e-12)
	assert.InDelta(t, 50.0, cfg.Cost.MonthlyLimitUSD, 1e-12)
	assert.Equal(t, 6, cfg.Cost.RetentionMonths)
	assert.Equal(t, 5, cfg.Game.ShortTermTurns)
	assert.Equal(t, 1500*time.Millisecond, cfg.Game.RevealInterval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("GEMINI_API_KEY", "env-gemini")
	t.Setenv("REDIS_PASSWORD", "env-redis")

	path := writeConfig(t, `
ai:
  openai:
    api_key: "file-key"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.AI.OpenAI.APIKey, "environment wins over the file")
	assert.Equal(t, "env-key", cfg.AI.Embedding.APIKey, "embedding shares the provider key")
	assert.Equal(t, "env-gemini", cfg.AI.Gemini.APIKey)
	assert.Equal(t, "env-redis", cfg.Database.Redis.Password)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not a mapping"))
	assert.Error(t, err)
}
