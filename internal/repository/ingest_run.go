package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/ragsync/internal/service"
)

type IngestRunRepository struct {
	db dbtx
}

func NewIngestRunRepository(pool *pgxpool.Pool) *IngestRunRepository {
	return &IngestRunRepository{db: pool}
}

// CreateIngestRun stores a pass summary and returns its id.
func (r *IngestRunRepository) CreateIngestRun(ctx context.Context, summary *service.IngestSummary, finishedAt time.Time) (string, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`INSERT INTO rag_ingest_runs
			(id, corpus_id, collection, discovered, processed, skipped, failed, removed, chunks, duration_ms, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id::text`,
		uuid.NewString(),
		summary.Corpus,
		summary.Collection,
		summary.Discovered,
		summary.Processed,
		summary.Skipped,
		summary.Failed,
		summary.Removed,
		summary.Chunks,
		summary.Duration.Milliseconds(),
		finishedAt,
	).Scan(&id)
	return id, err
}

// ListIngestRuns returns the latest runs, newest first. An empty corpus matches all corpora.
func (r *IngestRunRepository) ListIngestRuns(ctx context.Context, corpus string, limit int) ([]service.IngestRun, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id::text, corpus_id, collection, discovered, processed, skipped, failed, removed, chunks, duration_ms, finished_at
		 FROM rag_ingest_runs
		 WHERE ($1 = '' OR corpus_id = $1)
		 ORDER BY finished_at DESC
		 LIMIT $2`,
		corpus, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []service.IngestRun
	for rows.Next() {
		var run service.IngestRun
		var durationMS int64
		if err := rows.Scan(
			&run.ID,
			&run.Summary.Corpus,
			&run.Summary.Collection,
			&run.Summary.Discovered,
			&run.Summary.Processed,
			&run.Summary.Skipped,
			&run.Summary.Failed,
			&run.Summary.Removed,
			&run.Summary.Chunks,
			&durationMS,
			&run.FinishedAt,
		); err != nil {
			return nil, err
		}
		run.Summary.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
