//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/ragsync/internal/domain"
	"github.com/cloo-solutions/ragsync/internal/service"
	"github.com/cloo-solutions/ragsync/internal/testutil"
)

func testPoints(corpus, docID string, n int, vector []float32) []domain.Point {
	points := make([]domain.Point, n)
	for i := range points {
		points[i] = domain.Point{
			ID:     domain.NewChunkID(docID, i),
			Vector: vector,
			Payload: domain.Payload{
				CorpusID:   corpus,
				DocumentID: docID,
				SourcePath: docID + ".md",
				ChunkIndex: i,
				Text:       fmt.Sprintf("chunk %d", i),
				IngestedAt: 1700000000,
			},
		}
	}
	return points
}

func TestVectorIndex_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	index := NewVectorIndex(pool)
	require.NoError(t, index.Ping(ctx))
	require.NoError(t, index.EnsureCollection(ctx, "rag_docs", 3))
	require.NoError(t, index.EnsureCollection(ctx, "rag_docs", 3))

	err := index.EnsureCollection(ctx, "rag_docs", 4)
	assert.ErrorIs(t, err, domain.ErrCollectionDimension)

	require.NoError(t, index.Upsert(ctx, "rag_docs", testPoints("docs", "a", 5, []float32{1, 0, 0})))
	require.NoError(t, index.Upsert(ctx, "rag_docs", testPoints("docs", "b", 2, []float32{0, 1, 0})))
	require.NoError(t, index.Upsert(ctx, "rag_docs", testPoints("other", "c", 1, []float32{1, 0, 0})))

	hits, err := index.Search(ctx, "rag_docs", []float32{1, 0, 0}, domain.CorpusFilter("docs"), 10)
	require.NoError(t, err)
	require.Len(t, hits, 7)
	assert.Equal(t, "a", hits[0].Payload.DocumentID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	for _, h := range hits {
		assert.Equal(t, "docs", h.Payload.CorpusID)
	}

	// Shrink a to two chunks the way a synchronizer would.
	require.NoError(t, index.DeleteByFilter(ctx, "rag_docs", domain.DocumentFilter("docs", "a")))
	require.NoError(t, index.Upsert(ctx, "rag_docs", testPoints("docs", "a", 2, []float32{1, 0, 0})))

	hits, err = index.Search(ctx, "rag_docs", []float32{1, 0, 0}, domain.DocumentFilter("docs", "a"), 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// Upserting the same ids again does not duplicate rows.
	require.NoError(t, index.Upsert(ctx, "rag_docs", testPoints("docs", "a", 2, []float32{1, 0, 0})))
	hits, err = index.Search(ctx, "rag_docs", []float32{1, 0, 0}, domain.DocumentFilter("docs", "a"), 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = index.Search(ctx, "rag_docs", []float32{1, 0, 0}, domain.CorpusFilter("docs"), 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestVectorIndex_MissingCollection(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	index := NewVectorIndex(pool)

	assert.NoError(t, index.DeleteByFilter(ctx, "rag_missing", domain.DocumentFilter("docs", "a")))

	_, err := index.Search(ctx, "rag_missing", []float32{1}, domain.CorpusFilter("docs"), 3)
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)

	err = index.Upsert(ctx, "rag_missing", testPoints("docs", "a", 1, []float32{1}))
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestVectorIndex_UpsertRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	index := NewVectorIndex(pool)
	require.NoError(t, index.EnsureCollection(ctx, "rag_docs", 3))

	err := index.Upsert(ctx, "rag_docs", testPoints("docs", "a", 2, []float32{1, 0}))
	assert.ErrorIs(t, err, domain.ErrVectorDimension)

	hits, err := index.Search(ctx, "rag_docs", []float32{1, 0, 0}, domain.CorpusFilter("docs"), 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVectorIndex_WithSynchronizer(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()

	index := NewVectorIndex(pool)
	require.NoError(t, index.EnsureCollection(ctx, "rag_docs", 3))

	syncer := service.NewSynchronizer(index, "rag_", time.Second*10, nil)
	require.NoError(t, syncer.Synchronize(ctx, "docs", "a", testPoints("docs", "a", 4, []float32{0, 0, 1})))
	require.NoError(t, syncer.Synchronize(ctx, "docs", "a", nil))

	hits, err := index.Search(ctx, "rag_docs", []float32{0, 0, 1}, domain.CorpusFilter("docs"), 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIngestRunRepository(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc)
	defer pool.Close()
	require.NoError(t, testutil.TruncateAll(ctx, pool))

	repo := NewIngestRunRepository(pool)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, corpus := range []string{"docs", "notes", "docs"} {
		id, err := repo.CreateIngestRun(ctx, &service.IngestSummary{
			Corpus:     corpus,
			Collection: "rag_" + corpus,
			Discovered: i + 1,
			Processed:  i,
			Chunks:     10 * i,
			Duration:   1500 * time.Millisecond,
		}, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}

	runs, err := repo.ListIngestRuns(ctx, "docs", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 3, runs[0].Summary.Discovered)
	assert.Equal(t, 1500*time.Millisecond, runs[0].Summary.Duration)
	assert.True(t, runs[0].FinishedAt.After(runs[1].FinishedAt))

	all, err := repo.ListIngestRuns(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
