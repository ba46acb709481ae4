package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cloo-solutions/ragsync/internal/domain"
	"github.com/cloo-solutions/ragsync/internal/telemetry"
)

// DefaultIndexTimeout bounds each delete, upsert and search round-trip.
const DefaultIndexTimeout = 30 * time.Second

// VectorIndex is the storage engine holding embedded chunks.
// DeleteByFilter must succeed when nothing matches; Upsert replaces points by id.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, collection string, dimension int) error
	DeleteByFilter(ctx context.Context, collection string, filter domain.Filter) error
	Upsert(ctx context.Context, collection string, points []domain.Point) error
	Search(ctx context.Context, collection string, vector []float32, filter domain.Filter, k int) ([]domain.SearchHit, error)
}

// Synchronizer replaces a document's stored chunk generation with a new one.
type Synchronizer struct {
	index   VectorIndex
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewSynchronizer creates a Synchronizer writing to collections named prefix+corpus.
func NewSynchronizer(index VectorIndex, collectionPrefix string, timeout time.Duration, logger *slog.Logger) *Synchronizer {
	if timeout <= 0 {
		timeout = DefaultIndexTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		index:   index,
		prefix:  collectionPrefix,
		timeout: timeout,
		logger:  logger,
	}
}

// Synchronize deletes every stored chunk of documentID in corpus, then upserts points.
//
// The delete is acknowledged before the upsert is issued. If the delete fails the
// upsert is not attempted and the previous generation stays intact. If the upsert
// fails the document has no chunks until it is ingested again. An empty points
// slice removes the document from the index.
func (s *Synchronizer) Synchronize(ctx context.Context, corpus, documentID string, points []domain.Point) error {
	collection, err := domain.CollectionName(s.prefix, corpus)
	if err != nil {
		return err
	}
	if err := validatePoints(corpus, documentID, points); err != nil {
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, "Synchronizer.Synchronize", telemetry.SpanAttributes{
		Corpus:     corpus,
		Collection: collection,
		DocumentID: documentID,
		Operation:  "synchronize",
	})
	defer span.End()

	deleteCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.index.DeleteByFilter(deleteCtx, collection, domain.DocumentFilter(corpus, documentID))
	cancel()
	if err != nil {
		span.SetError(err)
		return domain.Wrap(domain.ErrDeleteFailed, err)
	}

	if len(points) == 0 {
		s.logger.Debug("document removed from index", "collection", collection, "doc_id", documentID)
		return nil
	}

	upsertCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.index.Upsert(upsertCtx, collection, points)
	cancel()
	if err != nil {
		span.SetError(err)
		s.logger.Warn("upsert failed after delete, document has no chunks until re-ingested",
			"collection", collection, "doc_id", documentID, "error", err)
		return domain.Wrap(domain.ErrUpsertFailed, err)
	}

	s.logger.Debug("document synchronized", "collection", collection, "doc_id", documentID, "points", len(points))
	return nil
}

func validatePoints(corpus, documentID string, points []domain.Point) error {
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		if p.Payload.CorpusID != corpus || p.Payload.DocumentID != documentID {
			return domain.Wrap(domain.ErrForeignPoint, fmt.Errorf("point %s has corpus=%q doc_id=%q", p.ID, p.Payload.CorpusID, p.Payload.DocumentID))
		}
		if _, dup := seen[p.ID]; dup {
			return domain.Wrap(domain.ErrDuplicatePointID, fmt.Errorf("point %s", p.ID))
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// DocumentLocker serializes work per document id. Distinct ids never block each other.
type DocumentLocker struct {
	mu    sync.Mutex
	locks map[string]*documentLock
}

type documentLock struct {
	mu   sync.Mutex
	refs int
}

// NewDocumentLocker creates an empty DocumentLocker.
func NewDocumentLocker() *DocumentLocker {
	return &DocumentLocker{locks: make(map[string]*documentLock)}
}

// Lock blocks until documentID is free and returns the matching unlock func.
func (l *DocumentLocker) Lock(documentID string) func() {
	l.mu.Lock()
	dl, ok := l.locks[documentID]
	if !ok {
		dl = &documentLock{}
		l.locks[documentID] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()

	return func() {
		dl.mu.Unlock()

		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, documentID)
		}
		l.mu.Unlock()
	}
}
