package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cloo-solutions/ragsync/internal/config"
	"github.com/cloo-solutions/ragsync/internal/domain"
)

// AddPipelineFlags registers the flags that override pipeline settings from the environment.
func AddPipelineFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.String("corpus", domain.DefaultCorpus, "Corpus to ingest into or search")
	fs.String("index", config.BackendQdrant, "Index backend: qdrant, pgvector or memory")
	fs.String("qdrant", "localhost:6334", "Qdrant gRPC address (host:port)")
	fs.String("database-url", "", "PostgreSQL connection URL for the pgvector backend")
	fs.String("embed-url", "", "OpenAI-compatible embeddings base URL")
	fs.String("model", "", "Embedding model name")
	fs.String("collection-prefix", "", "Prefix prepended to the corpus to name its collection")
	fs.Int("dimension", 0, "Expected embedding dimension")
	fs.Int("workers", 0, "Documents processed in parallel")

	for name, env := range pipelineFlagEnv {
		_ = fs.SetAnnotation(name, envAnnotation, []string{env})
	}
}

var pipelineFlagEnv = map[string]string{
	"corpus":            "RAGSYNC_CORPUS",
	"index":             "RAGSYNC_INDEX_BACKEND",
	"qdrant":            "RAGSYNC_QDRANT_HOST",
	"database-url":      "RAGSYNC_DATABASE_URL",
	"embed-url":         "RAGSYNC_EMBED_BASE_URL",
	"model":             "RAGSYNC_EMBED_MODEL",
	"collection-prefix": "RAGSYNC_COLLECTION_PREFIX",
	"dimension":         "RAGSYNC_EMBED_DIMENSIONS",
	"workers":           "RAGSYNC_WORKERS",
}

// LoadConfig loads the environment configuration, applies any flags the user
// set explicitly and validates the result.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := ApplyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyFlags copies changed flags onto cfg. Flags left at their defaults keep
// the environment value.
func ApplyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		v := f.Value.String()
		switch f.Name {
		case "corpus":
			cfg.Corpus = v
		case "index":
			cfg.IndexBackend = v
		case "qdrant":
			err = applyQdrantAddr(cfg, v)
		case "database-url":
			cfg.DatabaseURL = v
		case "embed-url":
			cfg.EmbedBaseURL = v
		case "model":
			cfg.EmbedModel = v
		case "collection-prefix":
			cfg.CollectionPrefix = v
		case "dimension":
			cfg.EmbedDimensions, err = strconv.Atoi(v)
		case "workers":
			cfg.Workers, err = strconv.Atoi(v)
		case "path":
			cfg.IngestRoot = v
		}
	})
	if err != nil {
		return domain.Wrap(domain.ErrInvalidConfig, err)
	}
	return nil
}

func applyQdrantAddr(cfg *config.Config, addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("--qdrant %q: %w", addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 {
		return fmt.Errorf("--qdrant %q: invalid port", addr)
	}
	cfg.QdrantHost = host
	cfg.QdrantPort = n
	return nil
}
