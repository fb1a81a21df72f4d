// Package cli provides the command-line interface for Catalens.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arcadia-data/catalens/internal/adapters/driven/embedding"
	"github.com/arcadia-data/catalens/internal/adapters/driven/embedding/ollama"
	"github.com/arcadia-data/catalens/internal/adapters/driven/embedding/openai"
	"github.com/arcadia-data/catalens/internal/adapters/driven/opensearch"
	"github.com/arcadia-data/catalens/internal/chunker"
	"github.com/arcadia-data/catalens/internal/config"
	"github.com/arcadia-data/catalens/internal/core/ports/driven"
	"github.com/arcadia-data/catalens/internal/core/ports/driving"
	"github.com/arcadia-data/catalens/internal/core/services"
	"github.com/arcadia-data/catalens/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services used by the commands. Wired from config on first use;
// tests replace these directly.
var (
	queryService driving.SemanticSearchService
	log          *logger.Logger
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "catalens",
	Short: "Semantic search over the data catalog",
	Long: `Catalens indexes data catalog entities as embedded text chunks and
answers natural-language queries with k-NN vector search.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ensureServices wires the search stack from configuration. Commands call
// it lazily so tests can inject their own services instead.
func ensureServices() error {
	if queryService != nil {
		return nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if debug {
		log = logger.NewDebug(os.Stderr)
	} else {
		log = logger.New()
	}

	embedder, err := buildEmbedding(cfg)
	if err != nil {
		return err
	}

	store := opensearch.NewStore(opensearch.Config{
		Endpoint: cfg.Store.Endpoint,
		Username: cfg.Store.Username,
		Password: cfg.Store.Password,
		Timeout:  cfg.Store.Timeout,
	}, log)

	search := services.NewSearchService(store, embedder, cfg.Store.Index, log)
	search.SetOverFetchMultiplier(cfg.Search.OverFetchMultiplier)

	builder := services.NewDocumentBuilder(chunker.New(), embedder, log)
	writer := services.NewIndexWriteService(store, builder, embedder, log)

	queryService = services.NewSearchAPIService(search, writer, cfg.Store.Index, log,
		services.WithEnabled(cfg.Enabled),
		services.WithLimits(cfg.Search.MaxSize, cfg.Search.MaxK),
	)
	defaultThreshold = cfg.Search.DefaultThreshold
	reindexDBPath = cfg.Reindex.DBPath
	return nil
}

// defaultThreshold is the similarity cutoff applied when --threshold is
// not passed. Zero keeps every candidate; overwritten from config during
// wiring.
var defaultThreshold = 0.0

// reindexDBPath is the partition database path from config.
var reindexDBPath string

func buildEmbedding(cfg config.Config) (driven.EmbeddingService, error) {
	limit := embedding.LimiterConfig{
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
	}

	switch cfg.Embedding.Provider {
	case config.ProviderOllama:
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Timeout:    cfg.Embedding.Timeout,
			Dimensions: cfg.Embedding.Dimension,
			RateLimit:  limit,
		}), nil
	case config.ProviderOpenAI:
		return openai.NewEmbeddingService(openai.Config{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Timeout:    cfg.Embedding.Timeout,
			Dimensions: cfg.Embedding.Dimension,
			RateLimit:  limit,
		})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}
