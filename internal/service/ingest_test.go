package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/ragsync/internal/domain"
	"github.com/cloo-solutions/ragsync/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	files   []domain.SourceFile
	content map[string]string
	listErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{content: make(map[string]string)}
}

func (s *fakeSource) add(path, text string) {
	s.files = append(s.files, domain.SourceFile{
		Path:    path,
		Size:    int64(len(text)),
		ModTime: time.Unix(1700000000, 0),
		Format:  domain.FormatFromPath(path),
	})
	s.content[path] = text
}

func (s *fakeSource) List(context.Context) ([]domain.SourceFile, error) {
	return s.files, s.listErr
}

func (s *fakeSource) Open(_ context.Context, f domain.SourceFile) (io.ReadCloser, error) {
	text, ok := s.content[f.Path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(strings.NewReader(text)), nil
}

// fakeNormalizer passes text through and fails on ".bin" files.
type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(_ context.Context, f domain.SourceFile, r io.Reader) (string, error) {
	if strings.HasSuffix(f.Path, ".bin") {
		return "", domain.Wrap(domain.ErrUnsupportedFormat, fmt.Errorf("%s", f.Path))
	}
	b, err := io.ReadAll(r)
	return string(b), err
}

// fakeEmbedder returns 2-d vectors and fails for any text containing "EMBEDFAIL".
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "EMBEDFAIL") {
			return nil, domain.Wrap(domain.ErrEmbeddingFailed, errors.New("status 500"))
		}
		out[i] = []float32{1, float32(len(t))}
	}
	return out, nil
}

type ingestFixture struct {
	source   *fakeSource
	index    *memory.Index
	embedder *fakeEmbedder
	svc      *IngestService
}

func newIngestFixture(t *testing.T, workers int) *ingestFixture {
	t.Helper()
	splitter, err := NewSplitter(SplitConfig{TargetSize: 40, Overlap: 8})
	require.NoError(t, err)

	f := &ingestFixture{
		source:   newFakeSource(),
		index:    memory.NewIndex(),
		embedder: &fakeEmbedder{},
	}
	synchronizer := NewSynchronizer(f.index, "rag_", time.Second, nil)
	f.svc = NewIngestService(f.source, fakeNormalizer{}, splitter, f.embedder, f.index, synchronizer,
		IngestConfig{CollectionPrefix: "rag_", Dimension: 2, Workers: workers}, nil)
	f.svc.now = func() time.Time { return time.Unix(1710000000, 0) }
	return f
}

func (f *ingestFixture) docID(path string) string {
	return domain.NewDocumentID(path, int64(len(f.source.content[path])), time.Unix(1700000000, 0))
}

func TestIngestService_Run_Success(t *testing.T) {
	f := newIngestFixture(t, 1)
	f.source.add("/docs/a.md", "# Alpha\n\nFirst paragraph of alpha.\n\n## Details\n\nMore details about alpha here.")
	f.source.add("/docs/b.txt", "short note")

	summary, err := f.svc.Run(context.Background(), IngestRequest{Corpus: "docs"})

	require.NoError(t, err)
	assert.Equal(t, "rag_docs", summary.Collection)
	assert.Equal(t, 2, summary.Discovered)
	assert.Equal(t, 2, summary.Processed)
	assert.Zero(t, summary.Skipped)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, summary.Chunks, f.index.Count("rag_docs", nil))

	hits, err := f.index.Search(context.Background(), "rag_docs", []float32{1, 10}, domain.DocumentFilter("docs", f.docID("/docs/b.txt")), 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	p := hits[0].Payload
	assert.Equal(t, domain.NewChunkID(f.docID("/docs/b.txt"), 0), hits[0].ID)
	assert.Equal(t, "docs", p.CorpusID)
	assert.Equal(t, "/docs/b.txt", p.SourcePath)
	assert.Equal(t, "short note", p.Text)
	assert.Equal(t, 0, p.ChunkIndex)
	assert.Equal(t, int64(1710000000), p.IngestedAt)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), p.ContentHash)
}

func TestIngestService_Run_SectionsInPayload(t *testing.T) {
	f := newIngestFixture(t, 1)
	f.source.add("/docs/a.md", "# Alpha\n\nFirst paragraph of alpha.\n\n## Details\n\nMore details about alpha here.")

	_, err := f.svc.Run(context.Background(), IngestRequest{Corpus: "docs"})
	require.NoError(t, err)

	hits, err := f.index.Search(context.Background(), "rag_docs", []float32{1, 1}, domain.CorpusFilter("docs"), 50)
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	sections := map[string]bool{}
	for _, h := range hits {
		sections[h.Payload.Section] = true
	}
	assert.True(t, sections["# Alpha"])
	assert.True(t, sections["## Details"])
}

func TestIngestService_Run_DefaultCorpus(t *testing.T) {
	f := newIngestFixture(t, 1)
	f.source.add("/a.md", "hello")

	summary, err := f.svc.Run(context.Background(), IngestRequest{})

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultCorpus, summary.Corpus)
	assert.Equal(t, 1, f.index.Count("rag_default", nil))
}

func TestIngestService_Run_NoFiles(t *testing.T) {
	f := newIngestFixture(t, 1)

	summary, err := f.svc.Run(context.Background(), IngestRequest{Corpus: "docs"})

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Discovered)
	assert.Equal(t, 0, summary.Processed)
	err = f.index.EnsureCollection(context.Background(), "rag_docs", 3)
	assert.ErrorIs(t, err, domain.ErrCollectionDimension, "collection created up front")
}

func TestIngestService_Run_ConversionErrorSkips(t *testing.T) {
	f := newIngestFixture(t, 1)
	f.source.add("/docs/blob.bin", "\x00\x01")
	f.source.add("/docs/ok.md", "fine")

	var results []DocumentResult
	summary, err := f.svc.Run(context.Background(), IngestRequest{
		Corpus:   "docs",
		Progress: func(r DocumentResult) { results = append(results, r) },
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Processed)
	require.Len(t, results, 2)
	assert.Equal(t, DocumentSkipped, results[0].Status)
	assert.True(t, domain.IsConversion(results[0].Err))
	assert.Equal(t, 0, f.index.Count("rag_docs", domain.DocumentFilter("docs", f.docID("/docs/blob.bin"))))
}

func TestIngestService_Run_EmbeddingFailureWritesNothing(t *testing.T) {
	f := newIngestFixture(t, 1)
	f.source.add("/docs/a.md", "will fail EMBEDFAIL")
	ctx := context.Background()

	// A previous generation exists for this document.
	docID := f.docID("/docs/a.md")
	require.NoError(t, f.index.EnsureCollection(ctx, "rag_docs", 2))
	require.NoError(t, f.index.Upsert(ctx, "rag_docs", makePoints("docs", docID, 3)))

	summary, err := f.svc.Run(ctx, IngestRequest{Corpus: "docs"})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, f.index.Count("rag_docs", domain.DocumentFilter("docs", docID)), "index left in its pre-call state")
}

func TestIngestService_Run_EmptyDocumentRemoved(t *testing.T) {
	f := newIngestFixture(t, 1)
	f.source.add("/docs/empty.md", "   \n\n  ")
	ctx := context.Background()

	docID := f.docID("/docs/empty.md")
	require.NoError(t, f.index.EnsureCollection(ctx, "rag_docs", 2))
	require.NoError(t, f.index.Upsert(ctx, "rag_docs", makePoints("docs", docID, 2)))

	summary, err := f.svc.Run(ctx, IngestRequest{Corpus: "docs"})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Removed)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 0, f.index.Count("rag_docs", domain.DocumentFilter("docs", docID)))
	assert.Equal(t, 0, f.embedder.calls, "nothing to embed")
}

func TestIngestService_Run_SyncFailureCounted(t *testing.T) {
	f := newIngestFixture(t, 1)
	f.source.add("/docs/a.md", "content")

	mockIndex := new(MockVectorIndex)
	mockIndex.On("EnsureCollection", mock.Anything, "rag_docs", 2).Return(nil)
	mockIndex.On("DeleteByFilter", mock.Anything, "rag_docs", mock.Anything).Return(errors.New("unavailable"))
	f.svc.index = mockIndex
	f.svc.sync = NewSynchronizer(mockIndex, "rag_", time.Second, nil)

	summary, err := f.svc.Run(context.Background(), IngestRequest{Corpus: "docs"})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	mockIndex.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestService_Run_SetupErrors(t *testing.T) {
	t.Run("invalid corpus", func(t *testing.T) {
		f := newIngestFixture(t, 1)
		_, err := f.svc.Run(context.Background(), IngestRequest{Corpus: "no spaces allowed"})
		assert.ErrorIs(t, err, domain.ErrInvalidCorpus)
	})

	t.Run("collection dimension conflict", func(t *testing.T) {
		f := newIngestFixture(t, 1)
		require.NoError(t, f.index.EnsureCollection(context.Background(), "rag_docs", 5))
		_, err := f.svc.Run(context.Background(), IngestRequest{Corpus: "docs"})
		assert.ErrorIs(t, err, domain.ErrCollectionDimension)
	})

	t.Run("listing fails", func(t *testing.T) {
		f := newIngestFixture(t, 1)
		f.source.listErr = errors.New("permission denied")
		_, err := f.svc.Run(context.Background(), IngestRequest{Corpus: "docs"})
		assert.Error(t, err)
	})
}

func TestIngestService_Run_Idempotent(t *testing.T) {
	f := newIngestFixture(t, 1)
	f.source.add("/docs/a.md", strings.Repeat("sentence number one. ", 20))
	ctx := context.Background()

	first, err := f.svc.Run(ctx, IngestRequest{Corpus: "docs"})
	require.NoError(t, err)
	ids := f.index.IDs("rag_docs", nil)

	second, err := f.svc.Run(ctx, IngestRequest{Corpus: "docs"})
	require.NoError(t, err)

	assert.Equal(t, first.Chunks, second.Chunks)
	assert.Equal(t, ids, f.index.IDs("rag_docs", nil))
}

func TestIngestService_Run_ParallelWorkers(t *testing.T) {
	f := newIngestFixture(t, 4)
	for i := 0; i < 20; i++ {
		f.source.add(fmt.Sprintf("/docs/%02d.md", i), strings.Repeat(fmt.Sprintf("doc %d text. ", i), 10))
	}

	var mu sync.Mutex
	seen := map[string]bool{}
	summary, err := f.svc.Run(context.Background(), IngestRequest{
		Corpus: "docs",
		Progress: func(r DocumentResult) {
			mu.Lock()
			seen[r.Path] = true
			mu.Unlock()
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 20, summary.Processed)
	assert.Len(t, seen, 20)
	assert.Equal(t, summary.Chunks, f.index.Count("rag_docs", nil))
}

func TestIngestService_Run_Canceled(t *testing.T) {
	f := newIngestFixture(t, 1)
	f.source.add("/docs/a.md", "text")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Run(ctx, IngestRequest{Corpus: "docs"})
	assert.ErrorIs(t, err, context.Canceled)
}
