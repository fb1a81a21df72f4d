// Package config loads and validates the Catalens configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Embedding provider names accepted in config.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config is the full application configuration.
type Config struct {
	// Enabled toggles the whole semantic search feature.
	Enabled bool `toml:"enabled"`

	Embedding EmbeddingConfig `toml:"embedding"`
	Store     StoreConfig     `toml:"store"`
	Search    SearchConfig    `toml:"search"`
	Bulk      BulkConfig      `toml:"bulk"`
	Reindex   ReindexConfig   `toml:"reindex"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	// Provider selects the embedding backend: "ollama" or "openai".
	Provider string `toml:"provider"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `toml:"base_url"`

	// APIKey authenticates against providers that require one.
	APIKey string `toml:"api_key"`

	// Model is the embedding model name.
	Model string `toml:"model"`

	// Dimension is the embedding vector size. Zero uses the provider's
	// default for the model.
	Dimension int `toml:"dimension"`

	// Timeout bounds each embedding request.
	Timeout time.Duration `toml:"timeout"`

	// RequestsPerSecond throttles provider calls. Zero disables limiting.
	RequestsPerSecond float64 `toml:"requests_per_second"`

	// Burst is the limiter burst size.
	Burst int `toml:"burst"`
}

// StoreConfig configures the vector document store.
type StoreConfig struct {
	// Endpoint is the cluster base URL.
	Endpoint string `toml:"endpoint"`

	// Index is the default search index name.
	Index string `toml:"index"`

	// Username and Password enable basic auth when both are set.
	Username string `toml:"username"`
	Password string `toml:"password"`

	// Timeout bounds each store request.
	Timeout time.Duration `toml:"timeout"`
}

// SearchConfig bounds query parameters at the API boundary.
type SearchConfig struct {
	// MaxSize caps the number of distinct entities per query.
	MaxSize int `toml:"max_size"`

	// MaxK caps the k-NN candidate pool size.
	MaxK int `toml:"max_k"`

	// OverFetchMultiplier widens the raw hit fetch before grouping.
	OverFetchMultiplier int `toml:"over_fetch_multiplier"`

	// DefaultThreshold is the similarity cutoff when a query omits one.
	DefaultThreshold float64 `toml:"default_threshold"`
}

// BulkConfig tunes the bulk indexer flush thresholds.
type BulkConfig struct {
	// MaxActions flushes the buffer when it holds this many chunks.
	MaxActions int `toml:"max_actions"`

	// MaxPayloadBytes flushes the buffer at this estimated size.
	MaxPayloadBytes int64 `toml:"max_payload_bytes"`
}

// ReindexConfig configures distributed reindex persistence.
type ReindexConfig struct {
	// DBPath is the SQLite partition database path. Empty uses the
	// default under the user's home directory.
	DBPath string `toml:"db_path"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Enabled: true,
		Embedding: EmbeddingConfig{
			Provider:          ProviderOllama,
			Model:             "nomic-embed-text",
			Dimension:         768,
			Timeout:           30 * time.Second,
			RequestsPerSecond: 0,
			Burst:             1,
		},
		Store: StoreConfig{
			Endpoint: "http://localhost:9200",
			Index:    "catalens_vectors",
			Timeout:  30 * time.Second,
		},
		Search: SearchConfig{
			MaxSize:             50,
			MaxK:                10000,
			OverFetchMultiplier: 2,
			DefaultThreshold:    0,
		},
		Bulk: BulkConfig{
			MaxActions:      100,
			MaxPayloadBytes: 10 * 1024 * 1024,
		},
		Reindex: ReindexConfig{},
	}
}

// Load reads a TOML config file over the defaults. A missing file is not
// an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("config: unknown embedding provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Provider == ProviderOpenAI && c.Embedding.APIKey == "" {
		return fmt.Errorf("config: embedding.api_key is required for the openai provider")
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("config: embedding.dimension must not be negative")
	}
	if c.Store.Endpoint == "" {
		return fmt.Errorf("config: store.endpoint is required")
	}
	if c.Store.Index == "" {
		return fmt.Errorf("config: store.index is required")
	}
	if c.Search.MaxSize <= 0 {
		return fmt.Errorf("config: search.max_size must be positive")
	}
	if c.Search.MaxK <= 0 {
		return fmt.Errorf("config: search.max_k must be positive")
	}
	if c.Search.OverFetchMultiplier <= 0 {
		return fmt.Errorf("config: search.over_fetch_multiplier must be positive")
	}
	if c.Search.DefaultThreshold < 0 || c.Search.DefaultThreshold > 1 {
		return fmt.Errorf("config: search.default_threshold must be within [0, 1]")
	}
	if c.Bulk.MaxActions <= 0 {
		return fmt.Errorf("config: bulk.max_actions must be positive")
	}
	if c.Bulk.MaxPayloadBytes <= 0 {
		return fmt.Errorf("config: bulk.max_payload_bytes must be positive")
	}
	return nil
}
