package qdrant

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

// MockPointsAPI mocks the Qdrant gRPC client
type MockPointsAPI struct {
	mock.Mock
}

func (m *MockPointsAPI) CollectionExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *MockPointsAPI) CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockPointsAPI) GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*qdrant.CollectionInfo), args.Error(1)
}

func (m *MockPointsAPI) CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error) {
	args := m.Called(ctx, req)
	return nil, args.Error(0)
}

func (m *MockPointsAPI) Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	args := m.Called(ctx, req)
	return nil, args.Error(0)
}

func (m *MockPointsAPI) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	args := m.Called(ctx, req)
	return nil, args.Error(0)
}

func (m *MockPointsAPI) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*qdrant.ScoredPoint), args.Error(1)
}

func (m *MockPointsAPI) HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error) {
	args := m.Called(ctx)
	return &qdrant.HealthCheckReply{}, args.Error(0)
}

func (m *MockPointsAPI) Close() error {
	return m.Called().Error(0)
}

func collectionInfo(size uint64) *qdrant.CollectionInfo {
	return &qdrant.CollectionInfo{
		Config: &qdrant.CollectionConfig{
			Params: &qdrant.CollectionParams{
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{Size: size, Distance: qdrant.Distance_Cosine}),
			},
		},
	}
}

func TestIndex_EnsureCollection_Creates(t *testing.T) {
	api := new(MockPointsAPI)
	idx := &Index{client: api}
	ctx := context.Background()

	api.On("CollectionExists", ctx, "rag_docs").Return(false, nil)
	api.On("CreateCollection", ctx, mock.MatchedBy(func(req *qdrant.CreateCollection) bool {
		params := req.GetVectorsConfig().GetParams()
		return req.GetCollectionName() == "rag_docs" && params.GetSize() == 768 && params.GetDistance() == qdrant.Distance_Cosine
	})).Return(nil)
	api.On("CreateFieldIndex", ctx, mock.MatchedBy(func(req *qdrant.CreateFieldIndexCollection) bool {
		return req.GetFieldName() == domain.FieldCorpusID
	})).Return(nil).Once()
	api.On("CreateFieldIndex", ctx, mock.MatchedBy(func(req *qdrant.CreateFieldIndexCollection) bool {
		return req.GetFieldName() == domain.FieldDocumentID
	})).Return(nil).Once()

	require.NoError(t, idx.EnsureCollection(ctx, "rag_docs", 768))
	api.AssertExpectations(t)
}

func TestIndex_EnsureCollection_Existing(t *testing.T) {
	ctx := context.Background()

	t.Run("matching dimension", func(t *testing.T) {
		api := new(MockPointsAPI)
		api.On("CollectionExists", ctx, "rag_docs").Return(true, nil)
		api.On("GetCollectionInfo", ctx, "rag_docs").Return(collectionInfo(768), nil)

		assert.NoError(t, (&Index{client: api}).EnsureCollection(ctx, "rag_docs", 768))
		api.AssertNotCalled(t, "CreateCollection", mock.Anything, mock.Anything)
	})

	t.Run("dimension conflict", func(t *testing.T) {
		api := new(MockPointsAPI)
		api.On("CollectionExists", ctx, "rag_docs").Return(true, nil)
		api.On("GetCollectionInfo", ctx, "rag_docs").Return(collectionInfo(1536), nil)

		err := (&Index{client: api}).EnsureCollection(ctx, "rag_docs", 768)
		assert.ErrorIs(t, err, domain.ErrCollectionDimension)
	})

	t.Run("unreachable", func(t *testing.T) {
		api := new(MockPointsAPI)
		api.On("CollectionExists", ctx, "rag_docs").Return(false, errors.New("unavailable"))

		err := (&Index{client: api}).EnsureCollection(ctx, "rag_docs", 768)
		assert.ErrorIs(t, err, domain.ErrCollectionSetup)
	})
}

func TestIndex_DeleteByFilter(t *testing.T) {
	api := new(MockPointsAPI)
	idx := &Index{client: api}
	ctx := context.Background()

	api.On("Delete", ctx, mock.MatchedBy(func(req *qdrant.DeletePoints) bool {
		must := req.GetPoints().GetFilter().GetMust()
		return req.GetCollectionName() == "rag_docs" &&
			req.GetWait() &&
			len(must) == 2 &&
			must[0].GetField().GetKey() == domain.FieldCorpusID &&
			must[0].GetField().GetMatch().GetKeyword() == "docs" &&
			must[1].GetField().GetKey() == domain.FieldDocumentID &&
			must[1].GetField().GetMatch().GetKeyword() == "doc-1"
	})).Return(nil)

	require.NoError(t, idx.DeleteByFilter(ctx, "rag_docs", domain.DocumentFilter("docs", "doc-1")))
	api.AssertExpectations(t)

	assert.ErrorIs(t, idx.DeleteByFilter(ctx, "rag_docs", nil), domain.ErrMissingFilter)
}

func TestIndex_DeleteByFilter_MissingCollection(t *testing.T) {
	api := new(MockPointsAPI)
	idx := &Index{client: api}
	ctx := context.Background()

	api.On("Delete", ctx, mock.Anything).Return(errors.New("Not found: Collection `rag_docs` doesn't exist!"))
	api.On("CollectionExists", ctx, "rag_docs").Return(false, nil)

	assert.NoError(t, idx.DeleteByFilter(ctx, "rag_docs", domain.CorpusFilter("docs")))
}

func TestIndex_Upsert(t *testing.T) {
	api := new(MockPointsAPI)
	idx := &Index{client: api}
	ctx := context.Background()

	id := domain.NewChunkID("doc-1", 0)
	point := domain.Point{
		ID:     id,
		Vector: []float32{0.1, 0.2},
		Payload: domain.Payload{
			CorpusID:   "docs",
			DocumentID: "doc-1",
			SourcePath: "/a.md",
			ChunkIndex: 0,
			Text:       "hello",
			Section:    "# A",
			IngestedAt: 1700000000,
		},
	}

	api.On("Upsert", ctx, mock.MatchedBy(func(req *qdrant.UpsertPoints) bool {
		if req.GetCollectionName() != "rag_docs" || !req.GetWait() || len(req.GetPoints()) != 1 {
			return false
		}
		p := req.GetPoints()[0]
		return p.GetId().GetUuid() == id &&
			p.GetPayload()[domain.FieldChunkText].GetStringValue() == "hello" &&
			p.GetPayload()[domain.FieldTimestamp].GetIntegerValue() == 1700000000
	})).Return(nil)

	require.NoError(t, idx.Upsert(ctx, "rag_docs", []domain.Point{point}))
	api.AssertExpectations(t)

	require.NoError(t, idx.Upsert(ctx, "rag_docs", nil), "empty upsert is a no-op")
}

func TestIndex_Search(t *testing.T) {
	api := new(MockPointsAPI)
	idx := &Index{client: api}
	ctx := context.Background()

	id := domain.NewChunkID("doc-1", 2)
	api.On("Query", ctx, mock.MatchedBy(func(req *qdrant.QueryPoints) bool {
		return req.GetCollectionName() == "rag_docs" &&
			req.GetLimit() == 3 &&
			len(req.GetFilter().GetMust()) == 1
	})).Return([]*qdrant.ScoredPoint{{
		Id:    qdrant.NewID(id),
		Score: 0.87,
		Payload: qdrant.NewValueMap(map[string]any{
			domain.FieldCorpusID:   "docs",
			domain.FieldDocumentID: "doc-1",
			domain.FieldChunkIndex: int64(2),
			domain.FieldChunkText:  "text",
		}),
	}}, nil)

	hits, err := idx.Search(ctx, "rag_docs", []float32{1, 0}, domain.CorpusFilter("docs"), 3)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, id, hits[0].ID)
	assert.InDelta(t, 0.87, hits[0].Score, 1e-6)
	assert.Equal(t, "docs", hits[0].Payload.CorpusID)
	assert.Equal(t, 2, hits[0].Payload.ChunkIndex)
	assert.Equal(t, "", hits[0].Payload.Section)
}

func TestIndex_Search_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing filter", func(t *testing.T) {
		_, err := (&Index{client: new(MockPointsAPI)}).Search(ctx, "c", []float32{1}, nil, 3)
		assert.ErrorIs(t, err, domain.ErrMissingFilter)
	})

	t.Run("non-positive k", func(t *testing.T) {
		_, err := (&Index{client: new(MockPointsAPI)}).Search(ctx, "c", []float32{1}, domain.CorpusFilter("a"), 0)
		assert.ErrorIs(t, err, domain.ErrInvalidTopK)
	})

	t.Run("missing collection", func(t *testing.T) {
		api := new(MockPointsAPI)
		api.On("Query", ctx, mock.Anything).Return(nil, errors.New("not found"))
		api.On("CollectionExists", ctx, "c").Return(false, nil)

		_, err := (&Index{client: api}).Search(ctx, "c", []float32{1}, domain.CorpusFilter("a"), 3)
		assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
	})

	t.Run("transport failure", func(t *testing.T) {
		api := new(MockPointsAPI)
		api.On("Query", ctx, mock.Anything).Return(nil, errors.New("unavailable"))
		api.On("CollectionExists", ctx, "c").Return(true, nil)

		_, err := (&Index{client: api}).Search(ctx, "c", []float32{1}, domain.CorpusFilter("a"), 3)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrCollectionNotFound)
	})
}

func TestIndex_Ping(t *testing.T) {
	api := new(MockPointsAPI)
	api.On("HealthCheck", mock.Anything).Return(nil).Once()
	api.On("HealthCheck", mock.Anything).Return(errors.New("down")).Once()
	idx := &Index{client: api}

	assert.NoError(t, idx.Ping(context.Background()))
	assert.Error(t, idx.Ping(context.Background()))
}
