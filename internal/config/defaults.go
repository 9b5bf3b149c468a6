package config

const (
	// BackendChroma talks to a Chroma v2 server over HTTP.
	BackendChroma = "chroma"
	// BackendSQLite keeps vectors in a local SQLite file.
	BackendSQLite = "sqlite"
)

// DefaultTemperature is the chat sampling temperature used when none is configured.
const DefaultTemperature = 0.4

// DefaultExtensions is the file extension allow-list used when none is configured.
var DefaultExtensions = []string{"md", "rs", "tsx", "ts", "js", "jsx", "html"}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.SyntaxTheme == "" {
		cfg.SyntaxTheme = "gruvbox"
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.CompletionModel == "" {
		cfg.OpenAI.CompletionModel = "gpt-4"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-large"
	}
	if cfg.OpenAI.Temperature == nil {
		t := DefaultTemperature
		cfg.OpenAI.Temperature = &t
	}
	if cfg.OpenAI.CacheSize == 0 {
		cfg.OpenAI.CacheSize = 1024
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = BackendChroma
	}
	if cfg.VectorStore.Host == "" {
		cfg.VectorStore.Host = "http://localhost:8000"
	}
	if cfg.VectorStore.Tenant == "" {
		cfg.VectorStore.Tenant = "default_tenant"
	}
	if cfg.VectorStore.Database == "" {
		cfg.VectorStore.Database = "default_database"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "kb_index"
	}
	if cfg.Index.Extensions == nil {
		cfg.Index.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Index.IgnoreFile == "" {
		cfg.Index.IgnoreFile = ".kbignore"
	}
	if cfg.Index.BatchSize == 0 {
		cfg.Index.BatchSize = 8
	}
	if cfg.Index.EmbedDelayMs == 0 {
		cfg.Index.EmbedDelayMs = 100
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 5
	}
	if cfg.Query.Format == "" {
		cfg.Query.Format = "pretty"
	}
	if cfg.Query.SimilarityThreshold == 0 {
		cfg.Query.SimilarityThreshold = 0.93
	}
	if cfg.Query.HistoryWindow == 0 {
		cfg.Query.HistoryWindow = 5
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.HTTP.TimeoutSeconds == 0 {
		cfg.HTTP.TimeoutSeconds = 60
	}
}
