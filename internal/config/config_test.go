package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "troika.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
version: "1.0"
model:
  name: gemini-2.0-flash
  max_output_tokens: 2048
retrieval:
  max_rounds: 3
  max_results: 5
orchestrator:
  retry_budget: 2
redis:
  addr: localhost:6379
logging:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-flash", cfg.Model.Name)
	assert.Equal(t, 2048, cfg.Model.MaxOutputTokens)
	assert.Equal(t, 3, cfg.Retrieval.MaxRounds)
	assert.Equal(t, 2, *cfg.Orchestrator.RetryBudget)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
version: "1.0"
model:
  name: gemini-2.0-flash
retrieval:
  max_rounds: 3
  max_results: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "GEMINI_API_KEY", cfg.Model.APIKeyEnv)
	assert.Equal(t, 1, *cfg.Orchestrator.RetryBudget, "retry budget defaults to one extra attempt")
	assert.Equal(t, 10, cfg.Retrieval.TimeoutSeconds)
	assert.Equal(t, "output", cfg.Output.Dir)
	assert.Equal(t, "result.json", cfg.Output.ResultFile)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Empty(t, cfg.Redis.Addr, "boards stay in-process unless Redis is configured")
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "wrong version",
			content: "version: \"2.0\"\nmodel:\n  name: m\nretrieval:\n  max_rounds: 3\n  max_results: 5\n",
			wantErr: "unsupported version",
		},
		{
			name:    "missing model name",
			content: "version: \"1.0\"\nretrieval:\n  max_rounds: 3\n  max_results: 5\n",
			wantErr: "model.name is required",
		},
		{
			name:    "zero max rounds",
			content: "version: \"1.0\"\nmodel:\n  name: m\nretrieval:\n  max_rounds: 0\n  max_results: 5\n",
			wantErr: "retrieval.max_rounds",
		},
		{
			name:    "negative max rounds",
			content: "version: \"1.0\"\nmodel:\n  name: m\nretrieval:\n  max_rounds: -1\n  max_results: 5\n",
			wantErr: "retrieval.max_rounds",
		},
		{
			name:    "zero max results",
			content: "version: \"1.0\"\nmodel:\n  name: m\nretrieval:\n  max_rounds: 3\n  max_results: 0\n",
			wantErr: "retrieval.max_results",
		},
		{
			name:    "negative retry budget",
			content: "version: \"1.0\"\nmodel:\n  name: m\nretrieval:\n  max_rounds: 3\n  max_results: 5\norchestrator:\n  retry_budget: -1\n",
			wantErr: "orchestrator.retry_budget",
		},
		{
			name:    "bad logging level",
			content: "version: \"1.0\"\nmodel:\n  name: m\nretrieval:\n  max_rounds: 3\n  max_results: 5\nlogging:\n  level: verbose\n",
			wantErr: "invalid logging.level",
		},
		{
			name:    "bad logging format",
			content: "version: \"1.0\"\nmodel:\n  name: m\nretrieval:\n  max_rounds: 3\n  max_results: 5\nlogging:\n  format: xml\n",
			wantErr: "invalid logging.format",
		},
		{
			name:    "malformed yaml",
			content: "version: [unclosed",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	t.Run("falls back to defaults when the file is absent", func(t *testing.T) {
		cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yml"))
		require.NoError(t, err)
		assert.Equal(t, "gemini-2.0-flash", cfg.Model.Name)
		assert.Equal(t, 3, cfg.Retrieval.MaxRounds)
	})

	t.Run("still rejects an invalid file", func(t *testing.T) {
		path := writeConfig(t, "version: \"9.9\"\n")
		_, err := LoadOrDefault(path)
		assert.Error(t, err)
	})
}

func TestAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKeyEnv = "TROIKA_TEST_API_KEY"

	t.Run("missing env var is an error", func(t *testing.T) {
		_, err := cfg.APIKey()
		assert.Error(t, err)
	})

	t.Run("resolves from the environment", func(t *testing.T) {
		t.Setenv("TROIKA_TEST_API_KEY", "secret")
		key, err := cfg.APIKey()
		require.NoError(t, err)
		assert.Equal(t, "secret", key)
	})
}
