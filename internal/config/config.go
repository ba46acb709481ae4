package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

const envPrefix = "RAGSYNC"

// Index backends.
const (
	BackendQdrant   = "qdrant"
	BackendPgvector = "pgvector"
	BackendMemory   = "memory"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	APIKey      string `envconfig:"API_KEY"`

	IndexBackend string `envconfig:"INDEX_BACKEND" default:"qdrant"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`
	QdrantHost   string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort   int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey string `envconfig:"QDRANT_API_KEY"`
	QdrantTLS    bool   `envconfig:"QDRANT_TLS" default:"false"`

	EmbedBaseURL    string        `envconfig:"EMBED_BASE_URL" default:"http://localhost:11434/v1"`
	EmbedAPIKey     string        `envconfig:"EMBED_API_KEY"`
	EmbedModel      string        `envconfig:"EMBED_MODEL" default:"nomic-embed-text"`
	EmbedDimensions int           `envconfig:"EMBED_DIMENSIONS" default:"768"`
	EmbedBatchSize  int           `envconfig:"EMBED_BATCH_SIZE" default:"32"`
	EmbedTimeout    time.Duration `envconfig:"EMBED_TIMEOUT" default:"120s"`
	IndexTimeout    time.Duration `envconfig:"INDEX_TIMEOUT" default:"30s"`

	CollectionPrefix   string `envconfig:"COLLECTION_PREFIX" default:"rag_"`
	ChunkTargetTokens  int    `envconfig:"CHUNK_TARGET_TOKENS" default:"800"`
	ChunkOverlapTokens int    `envconfig:"CHUNK_OVERLAP_TOKENS" default:"120"`

	Corpus         string        `envconfig:"CORPUS" default:"default"`
	IngestRoot     string        `envconfig:"INGEST_ROOT"`
	IngestInterval time.Duration `envconfig:"INGEST_INTERVAL" default:"0"`
	Workers        int           `envconfig:"WORKERS" default:"1"`

	S3Endpoint     string `envconfig:"S3_ENDPOINT"`
	S3AccessKey    string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey    string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Region       string `envconfig:"S3_REGION" default:"us-east-1"`
	S3UsePathStyle bool   `envconfig:"S3_USE_PATH_STYLE" default:"true"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

// Validate checks settings that would otherwise only fail after I/O has started.
func (c *Config) Validate() error {
	switch c.IndexBackend {
	case BackendQdrant, BackendMemory:
	case BackendPgvector:
		if c.DatabaseURL == "" {
			return invalid("DATABASE_URL is required for the pgvector backend")
		}
	default:
		return invalid("INDEX_BACKEND must be one of qdrant, pgvector, memory, got %q", c.IndexBackend)
	}

	if strings.TrimSpace(c.EmbedModel) == "" {
		return domain.ErrEmptyModel
	}
	if c.EmbedDimensions <= 0 {
		return domain.ErrInvalidDimension
	}
	if c.EmbedBatchSize <= 0 {
		return invalid("EMBED_BATCH_SIZE must be positive, got %d", c.EmbedBatchSize)
	}
	if c.EmbedTimeout <= 0 || c.IndexTimeout <= 0 {
		return invalid("EMBED_TIMEOUT and INDEX_TIMEOUT must be positive")
	}
	if c.ChunkTargetTokens <= 0 {
		return domain.ErrInvalidChunkSize
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkTargetTokens {
		return domain.ErrInvalidChunkOverlap
	}
	if c.Workers <= 0 {
		return invalid("WORKERS must be positive, got %d", c.Workers)
	}
	if c.IngestInterval < 0 {
		return invalid("INGEST_INTERVAL must not be negative")
	}
	if _, err := domain.CollectionName(c.CollectionPrefix, c.Corpus); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return invalid("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

func (c *Config) HasS3() bool {
	return c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

func (c *Config) HasAPIKey() bool {
	return c.APIKey != ""
}

// HasPeriodicIngest reports whether the daemon should re-ingest on a timer.
func (c *Config) HasPeriodicIngest() bool {
	return c.IngestRoot != "" && c.IngestInterval > 0
}

func invalid(format string, args ...any) error {
	return domain.Wrap(domain.ErrInvalidConfig, fmt.Errorf(format, args...))
}
