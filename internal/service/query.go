package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/ragsync/internal/domain"
	"github.com/cloo-solutions/ragsync/internal/telemetry"
)

const (
	// DefaultTopK is the result count used when callers do not specify one.
	DefaultTopK = 8
	// MaxTopK caps the result count of a single query.
	MaxTopK = 100
)

// ResolveTopK maps an unset k to DefaultTopK and caps it at MaxTopK.
// Negative values pass through so Query rejects them.
func ResolveTopK(k int) int {
	switch {
	case k == 0:
		return DefaultTopK
	case k > MaxTopK:
		return MaxTopK
	default:
		return k
	}
}

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// QueryService runs corpus-scoped similarity searches.
type QueryService struct {
	embedder QueryEmbedder
	index    VectorIndex
	prefix   string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewQueryService creates a new QueryService instance
func NewQueryService(embedder QueryEmbedder, index VectorIndex, collectionPrefix string, timeout time.Duration, logger *slog.Logger) *QueryService {
	if timeout <= 0 {
		timeout = DefaultIndexTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		embedder: embedder,
		index:    index,
		prefix:   collectionPrefix,
		timeout:  timeout,
		logger:   logger,
	}
}

// Query returns at most k hits from corpus, best first. k above MaxTopK is
// capped. An empty result is not an error.
func (s *QueryService) Query(ctx context.Context, corpus, text string, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		return nil, domain.ErrInvalidTopK
	}
	k = min(k, MaxTopK)
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyQuery
	}
	collection, err := domain.CollectionName(s.prefix, corpus)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "QueryService.Query", telemetry.SpanAttributes{
		Corpus:     corpus,
		Collection: collection,
		Operation:  "query",
	})
	defer span.End()

	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	filter := domain.CorpusFilter(corpus)
	searchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	hits, err := s.index.Search(searchCtx, collection, vector, filter, k)
	cancel()
	if errors.Is(err, domain.ErrCollectionNotFound) {
		s.logger.Debug("query against missing collection", "collection", collection)
		return []domain.SearchHit{}, nil
	}
	if err != nil {
		span.SetError(err)
		if domain.ErrorCode(err) != "" {
			return nil, err
		}
		return nil, domain.Wrap(domain.ErrSearchFailed, err)
	}

	// The backend applies the filter; results are re-checked so a misbehaving
	// index can never leak another corpus.
	scoped := make([]domain.SearchHit, 0, len(hits))
	for _, h := range hits {
		if filter.Matches(h.Payload) {
			scoped = append(scoped, h)
		} else {
			s.logger.Warn("dropping search hit from foreign corpus", "collection", collection, "id", h.ID, "corpus_id", h.Payload.CorpusID)
		}
	}

	sort.SliceStable(scoped, func(i, j int) bool { return scoped[i].Score > scoped[j].Score })
	if len(scoped) > k {
		scoped = scoped[:k]
	}

	span.SetCount("hits", len(scoped))
	return scoped, nil
}
