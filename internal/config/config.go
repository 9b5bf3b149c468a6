// Package config provides configuration loading and structs for kb-index.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

const (
	// EnvAPIKey overrides openai.api_key from the config file.
	EnvAPIKey = "OPENAI_API_KEY"
	// EnvConfigDir overrides the directory holding config.yaml and the state snapshots.
	EnvConfigDir = "KB_INDEX_CONFIG_DIR"

	appDirName     = "kb-index"
	configFileName = "config.yaml"
)

var (
	// ErrMissingAPIKey is returned when no API key is available for the model provider.
	ErrMissingAPIKey = errors.New("config: OpenAI API key not found; set OPENAI_API_KEY or run `kb config --set-api-key`")
	// ErrInvalid is returned when a config value is out of range or unknown.
	ErrInvalid = errors.New("config: invalid value")
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	StateDir    string            `yaml:"state_dir"`
	SyntaxTheme string            `yaml:"syntax_theme"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Index       IndexConfig       `yaml:"index"`
	Query       QueryConfig       `yaml:"query"`
	Server      ServerConfig      `yaml:"server"`
	HTTP        HTTPConfig        `yaml:"http"`
}

// OpenAIConfig holds the embedding and chat provider settings.
type OpenAIConfig struct {
	APIKey          string `yaml:"api_key,omitempty"`
	BaseURL         string `yaml:"base_url"`
	CompletionModel string `yaml:"completion_model"`
	EmbeddingModel  string `yaml:"embedding_model"`
	// Temperature is nil when unset so that an explicit 0 survives ApplyDefaults.
	Temperature *float64 `yaml:"temperature"`
	CacheSize   int      `yaml:"cache_size"`
}

// ChatTemperature returns the configured sampling temperature or DefaultTemperature.
func (c OpenAIConfig) ChatTemperature() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// VectorStoreConfig selects and addresses the vector store backend.
type VectorStoreConfig struct {
	// Backend is "chroma" (remote HTTP service) or "sqlite" (local file).
	Backend    string `yaml:"backend"`
	Host       string `yaml:"host"`
	Tenant     string `yaml:"tenant"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	SQLitePath string `yaml:"sqlite_path"`
}

// IndexConfig holds file discovery and dispatch settings.
type IndexConfig struct {
	Extensions []string `yaml:"extensions"`
	IgnoreFile string   `yaml:"ignore_file"`
	// Exclude holds doublestar globs, relative to the indexed root, of paths never indexed.
	Exclude      []string `yaml:"exclude,omitempty"`
	BatchSize    int      `yaml:"batch_size"`
	EmbedDelayMs int      `yaml:"embed_delay_ms"`
}

// QueryConfig holds query path settings.
type QueryConfig struct {
	TopK                int     `yaml:"top_k"`
	Format              string  `yaml:"format"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	HistoryWindow       int     `yaml:"history_window"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// HTTPConfig holds outbound transport settings shared by all remote clients.
type HTTPConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the transport timeout as a duration.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// Dir returns the directory holding config.yaml and the state snapshots.
// KB_INDEX_CONFIG_DIR takes precedence over the user config directory.
func Dir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine config directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// DefaultPath returns the default config file path inside Dir.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadOrCreate loads the config at path, writing a default config first when the file
// does not exist yet.
func LoadOrCreate(path string) (*Config, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := &Config{}
		ApplyDefaults(cfg)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, false, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := Save(path, cfg); err != nil {
			return nil, false, err
		}
		loaded, err := Load(path)
		return loaded, true, err
	}
	cfg, err := Load(path)
	return cfg, false, err
}

// Load reads and parses the config file at path, applies defaults, expands paths and
// applies environment overrides. Returns an error if the file cannot be read or parsed,
// or if a value is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	if cfg.StateDir == "" {
		cfg.StateDir = configDir
	} else {
		cfg.StateDir = expandPath(cfg.StateDir, configDir)
	}
	if cfg.VectorStore.SQLitePath == "" {
		cfg.VectorStore.SQLitePath = filepath.Join(cfg.StateDir, "vectors.db")
	} else {
		cfg.VectorStore.SQLitePath = expandPath(cfg.VectorStore.SQLitePath, configDir)
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.OpenAI.APIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path. Used by `kb config --set-api-key`.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// SetAPIKey stores key in the config file at path, keeping every other value as written.
// The file is created when missing.
func SetAPIKey(path, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: api key must not be empty", ErrInvalid)
	}
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		ApplyDefaults(&cfg)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
	}
	cfg.OpenAI.APIKey = key
	return Save(path, &cfg)
}

// Redacted returns a copy of c safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.Index.Extensions = append([]string(nil), c.Index.Extensions...)
	if k := out.OpenAI.APIKey; k != "" {
		if len(k) > 8 {
			out.OpenAI.APIKey = k[:4] + "..." + k[len(k)-4:]
		} else {
			out.OpenAI.APIKey = "****"
		}
	}
	return &out
}

// Validate reports values that would make the components misbehave.
func (c *Config) Validate() error {
	switch c.VectorStore.Backend {
	case BackendChroma, BackendSQLite:
	default:
		return fmt.Errorf("%w: vector_store.backend %q (want %q or %q)", ErrInvalid, c.VectorStore.Backend, BackendChroma, BackendSQLite)
	}
	if c.Index.BatchSize < 1 {
		return fmt.Errorf("%w: index.batch_size must be >= 1", ErrInvalid)
	}
	if c.Query.SimilarityThreshold <= 0 || c.Query.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: query.similarity_threshold must be in (0, 1]", ErrInvalid)
	}
	if t := c.OpenAI.ChatTemperature(); t < 0 || t > 2 {
		return fmt.Errorf("%w: openai.temperature must be in [0, 2]", ErrInvalid)
	}
	for _, p := range c.Index.Exclude {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("%w: index.exclude pattern %q", ErrInvalid, p)
		}
	}
	return nil
}

// RequireAPIKey returns the provider API key or ErrMissingAPIKey.
func (c *Config) RequireAPIKey() (string, error) {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return "", ErrMissingAPIKey
	}
	return c.OpenAI.APIKey, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
