package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/ragsync/internal/domain"
	"github.com/cloo-solutions/ragsync/internal/telemetry"
)

// Source lists and opens the files of one ingestion root.
type Source interface {
	List(ctx context.Context) ([]domain.SourceFile, error)
	Open(ctx context.Context, file domain.SourceFile) (io.ReadCloser, error)
}

// Normalizer converts a file into plain text. Unsupported or corrupt input
// yields a CONVERSION_ERROR.
type Normalizer interface {
	Normalize(ctx context.Context, file domain.SourceFile, r io.Reader) (string, error)
}

// DocumentEmbedder embeds chunk texts, one vector per text.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentStatus is the outcome of one document's unit of work.
type DocumentStatus string

const (
	DocumentProcessed DocumentStatus = "processed"
	DocumentSkipped   DocumentStatus = "skipped"
	DocumentFailed    DocumentStatus = "failed"
	DocumentRemoved   DocumentStatus = "removed"
)

// DocumentResult reports the outcome for one file.
type DocumentResult struct {
	Path       string
	DocumentID string
	Status     DocumentStatus
	Chunks     int
	Err        error
}

// IngestSummary counts document outcomes for one ingestion pass.
type IngestSummary struct {
	Corpus     string        `json:"corpus"`
	Collection string        `json:"collection"`
	Discovered int           `json:"discovered"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Removed    int           `json:"removed"`
	Chunks     int           `json:"chunks"`
	Duration   time.Duration `json:"duration_ns"`
}

// IngestRequest parameterizes one ingestion pass.
type IngestRequest struct {
	Corpus string
	// Progress, when set, is called once per document. Calls may come from
	// several goroutines but never concurrently.
	Progress func(DocumentResult)
}

// IngestConfig holds the pipeline settings that do not change between passes.
type IngestConfig struct {
	CollectionPrefix string
	Dimension        int
	Workers          int
}

// IngestService drives source files through normalize, split, embed and synchronize.
type IngestService struct {
	source     Source
	normalizer Normalizer
	splitter   *Splitter
	embedder   DocumentEmbedder
	index      VectorIndex
	sync       *Synchronizer
	locker     *DocumentLocker
	runs       IngestRunRepository
	cfg        IngestConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewIngestService creates a new IngestService instance
func NewIngestService(
	source Source,
	normalizer Normalizer,
	splitter *Splitter,
	embedder DocumentEmbedder,
	index VectorIndex,
	synchronizer *Synchronizer,
	cfg IngestConfig,
	logger *slog.Logger,
) *IngestService {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		source:     source,
		normalizer: normalizer,
		splitter:   splitter,
		embedder:   embedder,
		index:      index,
		sync:       synchronizer,
		locker:     NewDocumentLocker(),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// SetRunLog records every completed pass in repo. Recording failures are logged only.
func (s *IngestService) SetRunLog(repo IngestRunRepository) {
	s.runs = repo
}

// Run ingests every file of the source into the corpus collection.
// Per-document failures are counted, never returned; only setup errors and
// cancellation are.
func (s *IngestService) Run(ctx context.Context, req IngestRequest) (*IngestSummary, error) {
	started := s.now()

	corpus := req.Corpus
	if corpus == "" {
		corpus = domain.DefaultCorpus
	}
	collection, err := domain.CollectionName(s.cfg.CollectionPrefix, corpus)
	if err != nil {
		return nil, err
	}
	if s.cfg.Dimension <= 0 {
		return nil, domain.ErrInvalidDimension
	}

	ctx, span := telemetry.StartSpan(ctx, "IngestService.Run", telemetry.SpanAttributes{
		Corpus:     corpus,
		Collection: collection,
		Operation:  "ingest",
	})
	defer span.End()

	if err := s.index.EnsureCollection(ctx, collection, s.cfg.Dimension); err != nil {
		span.SetError(err)
		if domain.ErrorCode(err) != "" {
			return nil, err
		}
		return nil, domain.Wrap(domain.ErrCollectionSetup, err)
	}

	files, err := s.source.List(ctx)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("list source files: %w", err)
	}

	summary := &IngestSummary{Corpus: corpus, Collection: collection, Discovered: len(files)}
	span.SetCount("documents", len(files))
	if len(files) == 0 {
		s.logger.Info("no matching files", "corpus", corpus)
		summary.Duration = s.now().Sub(started)
		s.recordRun(ctx, summary)
		return summary, nil
	}

	var mu sync.Mutex
	record := func(r DocumentResult) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Status {
		case DocumentProcessed:
			summary.Processed++
			summary.Chunks += r.Chunks
		case DocumentRemoved:
			summary.Removed++
		case DocumentSkipped:
			summary.Skipped++
		case DocumentFailed:
			summary.Failed++
		}
		if req.Progress != nil {
			req.Progress(r)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			record(s.ingestDocument(gctx, corpus, f))
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = s.now().Sub(started)
	s.logger.Info("ingestion finished",
		"corpus", corpus,
		"discovered", summary.Discovered,
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"removed", summary.Removed,
		"chunks", summary.Chunks,
		"duration", summary.Duration,
	)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	s.recordRun(ctx, summary)
	return summary, nil
}

func (s *IngestService) recordRun(ctx context.Context, summary *IngestSummary) {
	if s.runs == nil {
		return
	}
	id, err := s.runs.CreateIngestRun(ctx, summary, s.now())
	if err != nil {
		s.logger.Warn("recording ingest run failed", "corpus", summary.Corpus, "error", err)
		return
	}
	s.logger.Debug("ingest run recorded", "run_id", id)
}

// ingestDocument is one unit of work. It holds the document lock for its whole
// duration so two passes never interleave on the same document.
func (s *IngestService) ingestDocument(ctx context.Context, corpus string, file domain.SourceFile) DocumentResult {
	doc := domain.NewDocument(file)
	result := DocumentResult{Path: doc.Path, DocumentID: doc.ID}

	unlock := s.locker.Lock(doc.ID)
	defer unlock()

	ctx, span := telemetry.StartSpan(ctx, "IngestService.Document", telemetry.SpanAttributes{
		Corpus:     corpus,
		DocumentID: doc.ID,
		SourcePath: doc.Path,
		Operation:  "ingest_document",
	})
	defer span.End()

	log := s.logger.With("path", doc.Path, "doc_id", doc.ID)

	text, err := s.readText(ctx, file)
	if err != nil {
		result.Err = err
		if domain.IsConversion(err) {
			result.Status = DocumentSkipped
			span.SetWarning(err.Error())
			log.Warn("skipping document", "error", err)
			return result
		}
		result.Status = DocumentFailed
		span.SetError(err)
		log.Error("reading document failed", "error", err)
		return result
	}

	chunks := s.splitter.Split(text)

	var points []domain.Point
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}

		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			result.Status = DocumentFailed
			result.Err = err
			span.SetError(err)
			log.Error("embedding failed, document left unchanged", "error", err)
			return result
		}

		points = buildPoints(corpus, doc, chunks, vectors, s.now())
	}

	if err := s.sync.Synchronize(ctx, corpus, doc.ID, points); err != nil {
		result.Status = DocumentFailed
		result.Err = err
		log.Error("synchronize failed", "error", err)
		return result
	}

	result.Chunks = len(points)
	span.SetCount("chunks", len(points))
	if len(points) == 0 {
		result.Status = DocumentRemoved
		log.Info("document has no text, removed from index")
		return result
	}

	result.Status = DocumentProcessed
	log.Info("document ingested", "chunks", len(points))
	return result
}

func (s *IngestService) readText(ctx context.Context, file domain.SourceFile) (string, error) {
	rc, err := s.source.Open(ctx, file)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file.Path, err)
	}
	defer rc.Close()

	return s.normalizer.Normalize(ctx, file, rc)
}

func buildPoints(corpus string, doc domain.Document, chunks []domain.Chunk, vectors [][]float32, now time.Time) []domain.Point {
	ts := now.Unix()
	points := make([]domain.Point, len(chunks))
	for i, c := range chunks {
		points[i] = domain.Point{
			ID:     domain.NewChunkID(doc.ID, c.Index),
			Vector: vectors[i],
			Payload: domain.Payload{
				CorpusID:    corpus,
				DocumentID:  doc.ID,
				SourcePath:  doc.Path,
				ChunkIndex:  c.Index,
				Text:        c.Text,
				Section:     c.Section,
				ContentHash: fmt.Sprintf("%016x", xxhash.Sum64String(c.Text)),
				IngestedAt:  ts,
			},
		}
	}
	return points
}
