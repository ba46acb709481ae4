package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

const (
	DefaultEmbedBatchSize = 32
	DefaultEmbedTimeout   = 120 * time.Second
)

// EmbeddingClient turns texts into vectors, one per input, in order.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingConfig controls batching and validation of embedding calls.
type EmbeddingConfig struct {
	BatchSize int
	Dimension int
	Timeout   time.Duration
}

// EmbeddingService batches embedding requests and validates their responses.
type EmbeddingService struct {
	client EmbeddingClient
	cfg    EmbeddingConfig
}

// NewEmbeddingService creates a new EmbeddingService instance
func NewEmbeddingService(client EmbeddingClient, cfg EmbeddingConfig) *EmbeddingService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultEmbedTimeout
	}
	return &EmbeddingService{client: client, cfg: cfg}
}

// EmbedDocuments embeds texts in batches. Any failure fails the whole call so
// callers never see a partial result.
func (s *EmbeddingService) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedQuery embeds a single query text.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyQuery
	}
	vectors, err := s.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *EmbeddingService) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	vectors, err := s.client.EmbedTexts(callCtx, texts)
	if err != nil {
		var de *domain.DomainError
		if errors.As(err, &de) && de.Code == domain.ErrCodeEmbedding {
			return nil, err
		}
		return nil, domain.Wrap(domain.ErrEmbeddingFailed, err)
	}

	if len(vectors) != len(texts) {
		return nil, domain.Wrap(domain.ErrEmbeddingCount, fmt.Errorf("sent %d texts, received %d vectors", len(texts), len(vectors)))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, domain.Wrap(domain.ErrEmbeddingEmptyVectors, fmt.Errorf("vector %d is empty", i))
		}
		if s.cfg.Dimension > 0 && len(v) != s.cfg.Dimension {
			return nil, domain.Wrap(domain.ErrEmbeddingDimension, fmt.Errorf("vector %d has %d dimensions, expected %d", i, len(v), s.cfg.Dimension))
		}
	}

	return vectors, nil
}
