package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/shelby-as-a-service/shelby/internal/core/domain"
)

// Duration is a time.Duration written as a string ("15m", "24h") in config files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the application configuration stored in config.toml.
type Config struct {
	// DataDir holds the catalog database and lock files (default: ~/.shelby/data).
	DataDir string `toml:"data_dir"`

	// EnvFile is loaded into the environment before secrets are read.
	EnvFile string `toml:"env_file"`

	Catalog      CatalogConfig                `toml:"catalog"`
	Lock         LockConfig                   `toml:"lock"`
	Embedding    EmbeddingConfig              `toml:"embedding"`
	VectorStores map[string]VectorStoreConfig `toml:"vector_stores"`
	Processor    ProcessorConfig              `toml:"processor"`
	Ingest       IngestConfig                 `toml:"ingest"`
	Schedule     ScheduleConfig               `toml:"schedule"`
	GitHub       GitHubConfig                 `toml:"github"`
}

// CatalogConfig selects the catalog backend.
type CatalogConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `toml:"driver"`
}

// LockConfig selects the source lock backend.
type LockConfig struct {
	// Driver is "local" or "redis".
	Driver string `toml:"driver"`

	RedisAddr        string   `toml:"redis_addr"`
	RedisPasswordEnv string   `toml:"redis_password_env"`
	RedisDB          int      `toml:"redis_db"`
	TTL              Duration `toml:"ttl"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai" or "ollama".
	Provider    string `toml:"provider"`
	Model       string `toml:"model"`
	BaseURL     string `toml:"base_url"`
	APIKeyEnv   string `toml:"api_key_env"`
	Dimensions  int    `toml:"dimensions"`
	BatchSize   int    `toml:"batch_size"`
	Concurrency int    `toml:"concurrency"`

	// CacheSize bounds the query embedding cache. Zero disables it.
	CacheSize int `toml:"cache_size"`
}

// VectorStoreConfig configures one named vector store. Domains and sources
// select a store by its name in Config.VectorStores.
type VectorStoreConfig struct {
	// Provider is "pinecone", "qdrant" or "memory".
	Provider  string `toml:"provider"`
	APIKeyEnv string `toml:"api_key_env"`

	// IndexHost is the Pinecone index data-plane host.
	IndexHost string `toml:"index_host"`

	// URL is the Qdrant endpoint.
	URL              string `toml:"url"`
	CollectionPrefix string `toml:"collection_prefix"`

	// Default marks the store used when a domain names none.
	Default bool `toml:"default"`
}

// ProcessorConfig holds the global chunking defaults.
type ProcessorConfig struct {
	// Tokenizer is a tiktoken encoding name or "words".
	Tokenizer      string `toml:"tokenizer"`
	MinLength      int    `toml:"min_length"`
	GoalLength     int    `toml:"goal_length"`
	MaxLength      int    `toml:"max_length"`
	OverlapPercent int    `toml:"overlap_percent"`
}

// IngestConfig tunes ingestion passes.
type IngestConfig struct {
	SourceConcurrency int      `toml:"source_concurrency"`
	FetchAttempts     int      `toml:"fetch_attempts"`
	FetchTimeout      Duration `toml:"fetch_timeout"`
	UpsertBatchSize   int      `toml:"upsert_batch_size"`
	DeleteBatchSize   int      `toml:"delete_batch_size"`
	SyncConcurrency   int      `toml:"sync_concurrency"`

	// Sparse adds BM25 sparse values to every upserted vector.
	Sparse bool `toml:"sparse"`
}

// ScheduleConfig configures `shelby schedule`.
type ScheduleConfig struct {
	Interval Duration `toml:"interval"`
}

// GitHubConfig configures the GitHub loader.
type GitHubConfig struct {
	TokenEnv string `toml:"token_env"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{Driver: "sqlite"},
		Lock: LockConfig{
			Driver:           "local",
			RedisPasswordEnv: "REDIS_PASSWORD",
			TTL:              Duration{30 * time.Second},
		},
		Embedding: EmbeddingConfig{
			Provider:    "openai",
			Model:       "text-embedding-ada-002",
			APIKeyEnv:   "OPENAI_API_KEY",
			Concurrency: 2,
			CacheSize:   1000,
		},
		VectorStores: map[string]VectorStoreConfig{
			"pinecone": {Provider: "pinecone", APIKeyEnv: "PINECONE_API_KEY", Default: true},
		},
		Processor: ProcessorConfig{
			Tokenizer:      "cl100k_base",
			MinLength:      1,
			GoalLength:     150,
			MaxLength:      200,
			OverlapPercent: 0,
		},
		Ingest: IngestConfig{
			SourceConcurrency: 2,
			FetchAttempts:     3,
			FetchTimeout:      Duration{15 * time.Minute},
			UpsertBatchSize:   20,
			DeleteBatchSize:   1000,
			SyncConcurrency:   4,
		},
		Schedule: ScheduleConfig{Interval: Duration{time.Hour}},
		GitHub:   GitHubConfig{TokenEnv: "GITHUB_TOKEN"},
	}
}

// DefaultConfigPath returns ~/.shelby/config.toml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".shelby", "config.toml"), nil
}

// LoadConfig reads path over the defaults. A missing file yields the defaults.
// The configured env file is loaded without overriding existing variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		// Configured stores replace the default store rather than merging into it.
		stores := cfg.VectorStores
		cfg.VectorStores = nil
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", domain.ErrInvalidInput, path, err)
		}
		if cfg.VectorStores == nil {
			cfg.VectorStores = stores
		}
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(filepath.Dir(path), "data")
	}
	if err := LoadEnv(cfg.EnvFile); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads KEY=VALUE pairs from path into the environment.
// Variables already set win. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// Validate checks the whole configuration and reports every problem.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidInput}, args...)...))
	}

	switch c.Catalog.Driver {
	case "sqlite", "memory":
	default:
		add("catalog.driver %q must be sqlite or memory", c.Catalog.Driver)
	}

	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Lock.RedisAddr == "" {
			add("lock.redis_addr is required for the redis driver")
		}
	default:
		add("lock.driver %q must be local or redis", c.Lock.Driver)
	}

	switch c.Embedding.Provider {
	case "openai", "ollama":
	default:
		add("embedding.provider %q must be openai or ollama", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 || c.Embedding.BatchSize < 0 || c.Embedding.CacheSize < 0 {
		add("embedding sizes must not be negative")
	}

	defaults := 0
	for _, name := range c.StoreNames() {
		vs := c.VectorStores[name]
		switch vs.Provider {
		case "pinecone", "qdrant", "memory":
		default:
			add("vector_stores.%s.provider %q must be pinecone, qdrant or memory", name, vs.Provider)
		}
		if vs.Default {
			defaults++
		}
	}
	if len(c.VectorStores) == 0 {
		add("at least one vector store is required")
	}
	if defaults > 1 {
		add("only one vector store may be the default")
	}

	p := domain.ProcessorSettings{
		MinLength:      c.Processor.MinLength,
		GoalLength:     c.Processor.GoalLength,
		MaxLength:      c.Processor.MaxLength,
		OverlapPercent: c.Processor.OverlapPercent,
	}
	if err := p.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("processor: %w", err))
	}

	if c.Ingest.SourceConcurrency < 1 || c.Ingest.SyncConcurrency < 1 {
		add("ingest concurrency must be at least 1")
	}
	if c.Ingest.FetchAttempts < 1 {
		add("ingest.fetch_attempts must be at least 1")
	}
	if c.Ingest.UpsertBatchSize < 1 || c.Ingest.DeleteBatchSize < 1 {
		add("ingest batch sizes must be at least 1")
	}

	return errors.Join(errs...)
}

// StoreNames returns the configured vector store names, sorted.
func (c *Config) StoreNames() []string {
	names := make([]string, 0, len(c.VectorStores))
	for name := range c.VectorStores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultStore returns the name of the store used when a domain names none.
// With a single store, that store is the default.
func (c *Config) DefaultStore() string {
	names := c.StoreNames()
	for _, name := range names {
		if c.VectorStores[name].Default {
			return name
		}
	}
	if len(names) == 1 {
		return names[0]
	}
	return ""
}

// ProcessorSettings returns the global chunking defaults.
func (c *Config) ProcessorSettings() domain.ProcessorSettings {
	return domain.ProcessorSettings{
		MinLength:      c.Processor.MinLength,
		GoalLength:     c.Processor.GoalLength,
		MaxLength:      c.Processor.MaxLength,
		OverlapPercent: c.Processor.OverlapPercent,
	}
}

// Secret reads an environment variable named by a config field.
func Secret(envName string) string {
	if envName == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envName))
}
