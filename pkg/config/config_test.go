package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "data/sessions.db", cfg.Database.Path)
	assert.False(t, cfg.Database.InMemory)
	assert.Equal(t, "anthropic", cfg.Run.Provider)
	assert.Equal(t, "ANTHROPIC_API_KEY", cfg.AnthropicAPIKeyEnv)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9999"
database:
  in_memory: true
run:
  model: claude-opus-4-5
  max_tokens: 8192
anthropic_api_key_env: MY_ANTHROPIC_KEY
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Listen)
	assert.True(t, cfg.Database.InMemory)
	assert.Equal(t, "claude-opus-4-5", cfg.Run.Model)
	assert.Equal(t, 8192, cfg.Run.MaxTokens)
	assert.Equal(t, "MY_ANTHROPIC_KEY", cfg.AnthropicAPIKeyEnv)
	// Untouched fields keep their defaults.
	assert.Equal(t, "anthropic", cfg.Run.Provider)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9999\"\n"), 0o600))

	t.Setenv("AGENTD_LISTEN", ":7777")
	t.Setenv("AGENTD_DB_IN_MEMORY", "true")
	t.Setenv("AGENTD_ANTHROPIC_API_KEY_ENV", "OTHER_KEY_VAR")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Listen)
	assert.True(t, cfg.Database.InMemory)
	assert.Equal(t, "OTHER_KEY_VAR", cfg.AnthropicAPIKeyEnv)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
