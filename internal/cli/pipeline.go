package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/ragsync/internal/config"
	"github.com/cloo-solutions/ragsync/internal/database"
	"github.com/cloo-solutions/ragsync/internal/memory"
	"github.com/cloo-solutions/ragsync/internal/normalize"
	"github.com/cloo-solutions/ragsync/internal/openai"
	"github.com/cloo-solutions/ragsync/internal/qdrant"
	"github.com/cloo-solutions/ragsync/internal/repository"
	"github.com/cloo-solutions/ragsync/internal/service"
	"github.com/cloo-solutions/ragsync/internal/source"
	"github.com/cloo-solutions/ragsync/internal/storage"
)

// PipelineOptions controls optional startup steps.
type PipelineOptions struct {
	// Migrate applies database migrations before the pgvector backend is used.
	Migrate bool
}

// Pipeline holds the process-wide clients and services built from one Config.
type Pipeline struct {
	Config     *config.Config
	Index      service.VectorIndex
	Embedder   *service.EmbeddingService
	Splitter   *service.Splitter
	Sync       *service.Synchronizer
	Query      *service.QueryService
	Health     *service.HealthService
	Normalizer *normalize.Registry
	// Runs is nil when no database is configured.
	Runs *repository.IngestRunRepository

	logger  *slog.Logger
	closers []func()
}

// NewPipeline connects the configured index backend and embedding endpoint.
// cfg must already be validated.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts PipelineOptions) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{Config: cfg, logger: logger, Normalizer: normalize.NewRegistry()}

	splitter, err := service.NewSplitter(service.SplitConfigFromTokens(cfg.ChunkTargetTokens, cfg.ChunkOverlapTokens))
	if err != nil {
		return nil, err
	}
	p.Splitter = splitter

	var pool *pgxpool.Pool
	if cfg.HasDatabase() {
		if opts.Migrate {
			if _, err := database.RunMigrations(cfg.DatabaseURL); err != nil {
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		pool, err = database.NewPool(ctx, database.Config{
			URL:      cfg.DatabaseURL,
			MaxConns: int32(max(cfg.Workers, 1) + 4),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		p.closers = append(p.closers, pool.Close)
		p.Runs = repository.NewIngestRunRepository(pool)
		logger.Debug("connected to database")
	}

	switch cfg.IndexBackend {
	case config.BackendPgvector:
		p.Index = repository.NewVectorIndex(pool)
	case config.BackendQdrant:
		idx, err := qdrant.New(qdrant.Config{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantTLS,
		})
		if err != nil {
			p.Close()
			return nil, err
		}
		p.closers = append(p.closers, func() { _ = idx.Close() })
		p.Index = idx
	case config.BackendMemory:
		p.Index = memory.NewIndex()
	default:
		p.Close()
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}

	client := openai.NewClientWithConfig(openai.Config{
		BaseURL:             cfg.EmbedBaseURL,
		APIKey:              cfg.EmbedAPIKey,
		EmbeddingModel:      cfg.EmbedModel,
		EmbeddingDimensions: cfg.EmbedDimensions,
	})
	p.Embedder = service.NewEmbeddingService(client, service.EmbeddingConfig{
		BatchSize: cfg.EmbedBatchSize,
		Dimension: cfg.EmbedDimensions,
		Timeout:   cfg.EmbedTimeout,
	})

	p.Sync = service.NewSynchronizer(p.Index, cfg.CollectionPrefix, cfg.IndexTimeout, logger)
	p.Query = service.NewQueryService(p.Embedder, p.Index, cfg.CollectionPrefix, cfg.IndexTimeout, logger)
	p.Health = service.NewHealthService(service.HealthInfo{
		Index:            cfg.IndexBackend,
		EmbeddingURL:     cfg.EmbedBaseURL,
		Model:            cfg.EmbedModel,
		CollectionPrefix: cfg.CollectionPrefix,
		Dimension:        cfg.EmbedDimensions,
	}, p.Index)

	return p, nil
}

// Source returns an S3 source for s3:// roots and a filesystem walker otherwise.
func (p *Pipeline) Source(ctx context.Context, root string) (service.Source, error) {
	if !storage.IsURI(root) {
		return source.NewFilesystem(root, p.Normalizer.Supports), nil
	}

	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        p.Config.S3Endpoint,
		Region:          p.Config.S3Region,
		AccessKeyID:     p.Config.S3AccessKey,
		SecretAccessKey: p.Config.S3SecretKey,
		UsePathStyle:    p.Config.S3UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	src, err := storage.NewS3Source(client, root, p.Normalizer.Supports)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Ingester builds an ingestion service over src. Completed passes are
// recorded when a database is configured.
func (p *Pipeline) Ingester(src service.Source) *service.IngestService {
	svc := service.NewIngestService(
		src,
		p.Normalizer,
		p.Splitter,
		p.Embedder,
		p.Index,
		p.Sync,
		service.IngestConfig{
			CollectionPrefix: p.Config.CollectionPrefix,
			Dimension:        p.Config.EmbedDimensions,
			Workers:          p.Config.Workers,
		},
		p.logger,
	)
	if p.Runs != nil {
		svc.SetRunLog(p.Runs)
	}
	return svc
}

// Close releases connections in reverse order of creation.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}
