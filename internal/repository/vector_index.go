package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

// filterColumns maps filterable payload fields to their columns.
var filterColumns = map[string]string{
	domain.FieldCorpusID:   "corpus_id",
	domain.FieldDocumentID: "doc_id",
	domain.FieldSourcePath: "source_path",
}

// VectorIndex stores each collection in its own pgvector table, registered in rag_collections.
type VectorIndex struct {
	db         txBeginner
	dimensions sync.Map // collection name -> int
}

func NewVectorIndex(pool *pgxpool.Pool) *VectorIndex {
	return &VectorIndex{db: pool}
}

// Ping checks database connectivity.
func (r *VectorIndex) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// EnsureCollection registers the collection and creates its table and indexes.
func (r *VectorIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return domain.ErrInvalidDimension
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.Wrap(domain.ErrCollectionSetup, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO rag_collections (name, dimension) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, dimension)
	if err != nil {
		return domain.Wrap(domain.ErrCollectionSetup, err)
	}

	var existing int
	if err := tx.QueryRow(ctx, `SELECT dimension FROM rag_collections WHERE name = $1`, name).Scan(&existing); err != nil {
		return domain.Wrap(domain.ErrCollectionSetup, err)
	}
	if existing != dimension {
		return domain.Wrap(domain.ErrCollectionDimension, fmt.Errorf("%s has %d, requested %d", name, existing, dimension))
	}

	for _, stmt := range collectionDDL(name, dimension) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return domain.Wrap(domain.ErrCollectionSetup, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Wrap(domain.ErrCollectionSetup, err)
	}

	r.dimensions.Store(name, dimension)
	return nil
}

// DeleteByFilter removes matching rows. An unknown collection deletes nothing.
func (r *VectorIndex) DeleteByFilter(ctx context.Context, name string, filter domain.Filter) error {
	where, args, err := whereClause(filter, 1)
	if err != nil {
		return err
	}
	if _, err := r.dimension(ctx, name); err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return nil
		}
		return err
	}

	_, err = r.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, tableName(name), where), args...)
	return err
}

// Upsert writes all points in one transaction, replacing rows with the same id.
func (r *VectorIndex) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	dim, err := r.dimension(ctx, name)
	if err != nil {
		return err
	}
	for _, p := range points {
		if len(p.Vector) != dim {
			return domain.Wrap(domain.ErrVectorDimension, fmt.Errorf("point %s has %d, collection has %d", p.ID, len(p.Vector), dim))
		}
	}

	query := fmt.Sprintf(`INSERT INTO %s
			(id, corpus_id, doc_id, source_path, chunk_index, chunk_text, section, content_hash, ingested_at, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			corpus_id = EXCLUDED.corpus_id,
			doc_id = EXCLUDED.doc_id,
			source_path = EXCLUDED.source_path,
			chunk_index = EXCLUDED.chunk_index,
			chunk_text = EXCLUDED.chunk_text,
			section = EXCLUDED.section,
			content_hash = EXCLUDED.content_hash,
			ingested_at = EXCLUDED.ingested_at,
			embedding = EXCLUDED.embedding`, tableName(name))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(query,
			p.ID,
			p.Payload.CorpusID,
			p.Payload.DocumentID,
			p.Payload.SourcePath,
			p.Payload.ChunkIndex,
			p.Payload.Text,
			p.Payload.Section,
			p.Payload.ContentHash,
			p.Payload.IngestedAt,
			pgvector.NewVector(p.Vector),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Search ranks rows by cosine similarity, 1 - cosine distance.
func (r *VectorIndex) Search(ctx context.Context, name string, vector []float32, filter domain.Filter, k int) ([]domain.SearchHit, error) {
	if k <= 0 {
		return nil, domain.ErrInvalidTopK
	}
	where, args, err := whereClause(filter, 2)
	if err != nil {
		return nil, err
	}
	dim, err := r.dimension(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, domain.Wrap(domain.ErrVectorDimension, fmt.Errorf("query has %d, collection has %d", len(vector), dim))
	}

	query := fmt.Sprintf(`SELECT id::text, corpus_id, doc_id, source_path, chunk_index, chunk_text, section, content_hash, ingested_at,
			1 - (embedding <=> $1) AS score
		 FROM %s
		 WHERE %s
		 ORDER BY embedding <=> $1
		 LIMIT %d`, tableName(name), where, k)

	rows, err := r.db.Query(ctx, query, append([]any{pgvector.NewVector(vector)}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []domain.SearchHit
	for rows.Next() {
		var h domain.SearchHit
		var score float64
		if err := rows.Scan(
			&h.ID,
			&h.Payload.CorpusID,
			&h.Payload.DocumentID,
			&h.Payload.SourcePath,
			&h.Payload.ChunkIndex,
			&h.Payload.Text,
			&h.Payload.Section,
			&h.Payload.ContentHash,
			&h.Payload.IngestedAt,
			&score,
		); err != nil {
			return nil, err
		}
		h.Score = float32(score)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return hits, nil
}

func (r *VectorIndex) dimension(ctx context.Context, name string) (int, error) {
	if v, ok := r.dimensions.Load(name); ok {
		return v.(int), nil
	}
	var dim int
	err := r.db.QueryRow(ctx, `SELECT dimension FROM rag_collections WHERE name = $1`, name).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.Wrap(domain.ErrCollectionNotFound, fmt.Errorf("%s", name))
	}
	if err != nil {
		return 0, err
	}
	r.dimensions.Store(name, dim)
	return dim, nil
}

func tableName(collection string) string {
	return pgx.Identifier{collection}.Sanitize()
}

// indexName derives a fixed-length index name so long collection names never
// collide after PostgreSQL truncates identifiers to 63 bytes.
func indexName(collection, suffix string) string {
	return pgx.Identifier{fmt.Sprintf("idx_%016x_%s", xxhash.Sum64String(collection), suffix)}.Sanitize()
}

func collectionDDL(collection string, dimension int) []string {
	table := tableName(collection)
	docIndex := indexName(collection, "doc")
	vecIndex := indexName(collection, "embedding")
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id            UUID PRIMARY KEY,
			corpus_id     TEXT NOT NULL,
			doc_id        TEXT NOT NULL,
			source_path   TEXT NOT NULL,
			chunk_index   INTEGER NOT NULL,
			chunk_text    TEXT NOT NULL,
			section       TEXT NOT NULL DEFAULT '',
			content_hash  TEXT NOT NULL DEFAULT '',
			ingested_at   BIGINT NOT NULL,
			embedding     vector(%d) NOT NULL
		)`, table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (corpus_id, doc_id)`, docIndex, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`, vecIndex, table),
	}
}

// whereClause renders filter as AND-ed equality predicates with placeholders
// numbered from first.
func whereClause(filter domain.Filter, first int) (string, []any, error) {
	if err := filter.Validate(); err != nil {
		return "", nil, err
	}
	parts := make([]string, len(filter))
	args := make([]any, len(filter))
	for i, m := range filter {
		parts[i] = fmt.Sprintf("%s = $%d", filterColumns[m.Field], first+i)
		args[i] = m.Value
	}
	return strings.Join(parts, " AND "), args, nil
}
