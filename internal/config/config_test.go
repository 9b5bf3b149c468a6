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
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
openai:
  api_key: "sk-file"
vector_store:
  backend: sqlite
  collection: notes
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sk-file", cfg.OpenAI.APIKey)
	assert.Equal(t, BackendSQLite, cfg.VectorStore.Backend)
	assert.Equal(t, "notes", cfg.VectorStore.Collection)
	assert.Equal(t, filepath.Dir(path), cfg.StateDir)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "vectors.db"), cfg.VectorStore.SQLitePath)
	assert.False(t, cfg.Debug)
}

func TestLoad_envAPIKeyOverridesFile(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-env")
	path := writeConfig(t, "openai:\n  api_key: sk-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
state_dir: "./state"
vector_store:
  sqlite_path: "./data/vectors.db"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, filepath.Join(dir, "state"), cfg.StateDir)
	assert.Equal(t, filepath.Join(dir, "data", "vectors.db"), cfg.VectorStore.SQLitePath)
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "vector_store:\n  backend: faiss\n"},
		{"negative batch", "index:\n  batch_size: -1\n"},
		{"threshold above one", "query:\n  similarity_threshold: 1.5\n"},
		{"negative temperature", "openai:\n  temperature: -0.1\n"},
		{"bad exclude glob", "index:\n  exclude: [\"docs/[\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_malformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)
}

func TestLoadOrCreate_writesDefaults(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.FileExists(t, path)
	assert.Equal(t, "gpt-4", cfg.OpenAI.CompletionModel)

	_, created, err = LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "gpt-4", cfg.OpenAI.CompletionModel)
	assert.Equal(t, "text-embedding-3-large", cfg.OpenAI.EmbeddingModel)
	require.NotNil(t, cfg.OpenAI.Temperature)
	assert.InDelta(t, 0.4, cfg.OpenAI.ChatTemperature(), 1e-9)
	assert.Equal(t, BackendChroma, cfg.VectorStore.Backend)
	assert.Equal(t, "default_tenant", cfg.VectorStore.Tenant)
	assert.Equal(t, "default_database", cfg.VectorStore.Database)
	assert.Equal(t, "kb_index", cfg.VectorStore.Collection)
	assert.Equal(t, DefaultExtensions, cfg.Index.Extensions)
	assert.Equal(t, ".kbignore", cfg.Index.IgnoreFile)
	assert.Equal(t, 8, cfg.Index.BatchSize)
	assert.Equal(t, 100, cfg.Index.EmbedDelayMs)
	assert.Equal(t, 5, cfg.Query.TopK)
	assert.InDelta(t, 0.93, cfg.Query.SimilarityThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Query.HistoryWindow)
	assert.Equal(t, 60, cfg.HTTP.TimeoutSeconds)
}

func TestLoad_zeroTemperatureKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "openai:\n  temperature: 0\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.OpenAI.Temperature)
	assert.Zero(t, cfg.OpenAI.ChatTemperature())

	cfg, err = Load(writeConfig(t, "openai:\n  base_url: http://localhost\n"))
	require.NoError(t, err)
	assert.InDelta(t, DefaultTemperature, cfg.OpenAI.ChatTemperature(), 1e-9)

	assert.InDelta(t, DefaultTemperature, OpenAIConfig{}.ChatTemperature(), 1e-9)
}

func TestLoad_exclude(t *testing.T) {
	cfg, err := Load(writeConfig(t, "index:\n  exclude: [\"**/testdata/**\"]\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"**/testdata/**"}, cfg.Index.Exclude)
}

func TestApplyDefaults_keepsExplicitValues(t *testing.T) {
	cfg := &Config{Index: IndexConfig{Extensions: []string{"txt"}, BatchSize: 2}}
	ApplyDefaults(cfg)
	assert.Equal(t, []string{"txt"}, cfg.Index.Extensions)
	assert.Equal(t, 2, cfg.Index.BatchSize)
}

func TestRequireAPIKey(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.RequireAPIKey()
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	cfg.OpenAI.APIKey = "sk-test"
	key, err := cfg.RequireAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)
}

func TestDir_envOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)

	got, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), path)
}

func TestSave(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Server.Port = 9090
	cfg.OpenAI.APIKey = "sk-saved"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, loaded.Server.Port)
	assert.Equal(t, "sk-saved", loaded.OpenAI.APIKey)
}

func TestHTTPConfig_Timeout(t *testing.T) {
	assert.Equal(t, 90*time.Second, HTTPConfig{TimeoutSeconds: 90}.Timeout())
}

func TestSetAPIKey(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	path := writeConfig(t, "server:\n  port: 9191\n")

	require.NoError(t, SetAPIKey(path, "  sk-new  "))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-new", loaded.OpenAI.APIKey)
	assert.Equal(t, 9191, loaded.Server.Port)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "state_dir: /", "expanded paths are not written back")

	fresh := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SetAPIKey(fresh, "sk-fresh"))
	loaded, err = Load(fresh)
	require.NoError(t, err)
	assert.Equal(t, "sk-fresh", loaded.OpenAI.APIKey)

	assert.ErrorIs(t, SetAPIKey(fresh, " "), ErrInvalid)
}

func TestRedacted(t *testing.T) {
	cfg := &Config{OpenAI: OpenAIConfig{APIKey: "sk-1234567890abcd"}}
	assert.Equal(t, "sk-1...abcd", cfg.Redacted().OpenAI.APIKey)
	assert.Equal(t, "sk-1234567890abcd", cfg.OpenAI.APIKey)

	cfg.OpenAI.APIKey = "short"
	assert.Equal(t, "****", cfg.Redacted().OpenAI.APIKey)
}
