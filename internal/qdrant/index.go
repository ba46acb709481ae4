// Package qdrant stores embedded chunks in Qdrant collections over gRPC.
package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

// DefaultPort is Qdrant's gRPC port.
const DefaultPort = 6334

// pointsAPI is the subset of *qdrant.Client used by Index.
type pointsAPI interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// Config holds connection settings.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// Index is a Qdrant-backed vector index.
type Index struct {
	client pointsAPI
}

// New connects to Qdrant.
func New(cfg Config) (*Index, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Index{client: client}, nil
}

// Close releases the gRPC connection.
func (x *Index) Close() error {
	return x.client.Close()
}

// Ping checks that Qdrant answers health checks.
func (x *Index) Ping(ctx context.Context) error {
	_, err := x.client.HealthCheck(ctx)
	return err
}

// EnsureCollection creates a cosine collection with keyword indexes on the
// filter fields, or verifies the vector size of an existing one.
func (x *Index) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return domain.ErrInvalidDimension
	}

	exists, err := x.client.CollectionExists(ctx, name)
	if err != nil {
		return domain.Wrap(domain.ErrCollectionSetup, err)
	}

	if exists {
		info, err := x.client.GetCollectionInfo(ctx, name)
		if err != nil {
			return domain.Wrap(domain.ErrCollectionSetup, err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != uint64(dimension) {
			return domain.Wrap(domain.ErrCollectionDimension, fmt.Errorf("%s has %d, requested %d", name, size, dimension))
		}
		return nil
	}

	err = x.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return domain.Wrap(domain.ErrCollectionSetup, err)
	}

	for _, field := range []string{domain.FieldCorpusID, domain.FieldDocumentID} {
		_, err := x.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return domain.Wrap(domain.ErrCollectionSetup, fmt.Errorf("index %s: %w", field, err))
		}
	}
	return nil
}

// DeleteByFilter removes matching points and waits for the operation to apply.
func (x *Index) DeleteByFilter(ctx context.Context, name string, filter domain.Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	_, err := x.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(toFilter(filter)),
	})
	if err != nil {
		if missing, _ := x.missing(ctx, name); missing {
			return nil
		}
		return fmt.Errorf("qdrant delete: %w", err)
	}
	return nil
}

// Upsert writes points and waits for the operation to apply.
func (x *Index) Upsert(ctx context.Context, name string, points []domain.Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(payloadMap(p.Payload)),
		}
	}
	_, err := x.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// Search runs a filtered nearest-neighbour query.
func (x *Index) Search(ctx context.Context, name string, vector []float32, filter domain.Filter, k int) ([]domain.SearchHit, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, domain.ErrInvalidTopK
	}

	scored, err := x.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQuery(vector...),
		Filter:         toFilter(filter),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		if missing, _ := x.missing(ctx, name); missing {
			return nil, domain.Wrap(domain.ErrCollectionNotFound, fmt.Errorf("%s", name))
		}
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	hits := make([]domain.SearchHit, 0, len(scored))
	for _, sp := range scored {
		hits = append(hits, domain.SearchHit{
			ID:      sp.GetId().GetUuid(),
			Score:   sp.GetScore(),
			Payload: fromPayload(sp.GetPayload()),
		})
	}
	return hits, nil
}

// missing reports whether a failed call hit a collection that does not exist.
func (x *Index) missing(ctx context.Context, name string) (bool, error) {
	exists, err := x.client.CollectionExists(ctx, name)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func toFilter(filter domain.Filter) *qdrant.Filter {
	must := make([]*qdrant.Condition, len(filter))
	for i, m := range filter {
		must[i] = qdrant.NewMatch(m.Field, m.Value)
	}
	return &qdrant.Filter{Must: must}
}

func payloadMap(p domain.Payload) map[string]any {
	return map[string]any{
		domain.FieldCorpusID:    p.CorpusID,
		domain.FieldDocumentID:  p.DocumentID,
		domain.FieldSourcePath:  p.SourcePath,
		domain.FieldChunkIndex:  int64(p.ChunkIndex),
		domain.FieldChunkText:   p.Text,
		domain.FieldSection:     p.Section,
		domain.FieldContentHash: p.ContentHash,
		domain.FieldTimestamp:   p.IngestedAt,
	}
}

func fromPayload(m map[string]*qdrant.Value) domain.Payload {
	return domain.Payload{
		CorpusID:    m[domain.FieldCorpusID].GetStringValue(),
		DocumentID:  m[domain.FieldDocumentID].GetStringValue(),
		SourcePath:  m[domain.FieldSourcePath].GetStringValue(),
		ChunkIndex:  int(m[domain.FieldChunkIndex].GetIntegerValue()),
		Text:        m[domain.FieldChunkText].GetStringValue(),
		Section:     m[domain.FieldSection].GetStringValue(),
		ContentHash: m[domain.FieldContentHash].GetStringValue(),
		IngestedAt:  m[domain.FieldTimestamp].GetIntegerValue(),
	}
}
