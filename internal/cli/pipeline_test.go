package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/ragsync/internal/config"
	"github.com/cloo-solutions/ragsync/internal/memory"
	"github.com/cloo-solutions/ragsync/internal/service"
	"github.com/cloo-solutions/ragsync/internal/source"
	"github.com/cloo-solutions/ragsync/internal/storage"
)

// newEmbeddingServer answers OpenAI-style embedding requests with 4-dimensional
// vectors derived from each input's length.
func newEmbeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		for i, in := range req.Input {
			n := float32(len(in))
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{1, n, 0.5, 1 / (n + 1)}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": req.Model, "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func memoryConfig(t *testing.T, embedURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.IndexBackend = config.BackendMemory
	cfg.DatabaseURL = ""
	cfg.EmbedBaseURL = embedURL
	cfg.EmbedDimensions = 4
	cfg.Corpus = "handbook"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewPipeline_Memory(t *testing.T) {
	ctx := context.Background()
	srv := newEmbeddingServer(t)
	cfg := memoryConfig(t, srv.URL+"/v1")

	p, err := NewPipeline(ctx, cfg, nil, PipelineOptions{})
	require.NoError(t, err)
	defer p.Close()

	assert.IsType(t, &memory.Index{}, p.Index)
	assert.Nil(t, p.Runs)

	info := p.Health.Check(ctx)
	assert.Equal(t, "ok", info.Status)
	assert.Equal(t, config.BackendMemory, info.Index)
	assert.Equal(t, 4, info.Dimension)
}

func TestPipeline_IngestThenQuery(t *testing.T) {
	ctx := context.Background()
	srv := newEmbeddingServer(t)
	cfg := memoryConfig(t, srv.URL+"/v1")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "leave.md"), []byte("# Leave\n\nEmployees get 25 days of paid leave."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644))

	p, err := NewPipeline(ctx, cfg, nil, PipelineOptions{})
	require.NoError(t, err)
	defer p.Close()

	src, err := p.Source(ctx, dir)
	require.NoError(t, err)

	summary, err := p.Ingester(src).Run(ctx, service.IngestRequest{Corpus: cfg.Corpus})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Discovered)
	assert.Equal(t, 1, summary.Processed)

	hits, err := p.Query.Query(ctx, cfg.Corpus, "how many days of leave", 3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, filepath.Join(dir, "leave.md"), hits[0].Payload.SourcePath)
	assert.Equal(t, cfg.Corpus, hits[0].Payload.CorpusID)

	hits, err = p.Query.Query(ctx, "other", "how many days of leave", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPipeline_Source(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t, "http://localhost:1/v1")
	cfg.S3Endpoint = "http://localhost:9000"
	cfg.S3AccessKey = "key"
	cfg.S3SecretKey = "secret"

	p, err := NewPipeline(ctx, cfg, nil, PipelineOptions{})
	require.NoError(t, err)
	defer p.Close()

	t.Run("filesystem", func(t *testing.T) {
		src, err := p.Source(ctx, t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &source.Filesystem{}, src)
	})

	t.Run("s3", func(t *testing.T) {
		src, err := p.Source(ctx, "s3://docs/handbook")
		require.NoError(t, err)
		assert.IsType(t, &storage.S3Source{}, src)
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		_, err := p.Source(ctx, "s3://")
		assert.Error(t, err)
	})
}
