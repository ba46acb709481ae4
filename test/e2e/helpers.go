//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/ragsync/internal/cli"
	"github.com/cloo-solutions/ragsync/internal/cli/admin"
	"github.com/cloo-solutions/ragsync/internal/config"
	"github.com/cloo-solutions/ragsync/internal/storage"
	"github.com/cloo-solutions/ragsync/internal/testutil"
)

const (
	e2eAPIKey    = "e2e-secret"
	e2eBucket    = "docs"
	e2eDimension = 16
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T           *testing.T
	Ctx         context.Context
	PostgresC   *testutil.PostgresContainer
	RustFSC     *testutil.RustFSContainer
	Pool        *pgxpool.Pool
	Config      *config.Config
	EmbedServer *httptest.Server
	ServerURL   string
	S3Client    *s3.Client
	BinaryDir   string
	HTTPClient  *http.Client

	pipeline     *cli.Pipeline
	serverCloser func()
}

// SetupE2EEnv starts PostgreSQL (pgvector), RustFS, a fake embeddings endpoint
// and the API server ingesting s3://docs/handbook into the "handbook" corpus.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC)

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     s3C.AccessKey,
		SecretAccessKey: s3C.SecretKey,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if _, err := s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(e2eBucket)}); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	embedSrv := newKeywordEmbeddingServer(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg.IndexBackend = config.BackendPgvector
	cfg.DatabaseURL = pgC.ConnectionString()
	cfg.EmbedBaseURL = embedSrv.URL + "/v1"
	cfg.EmbedDimensions = e2eDimension
	cfg.Corpus = "handbook"
	cfg.IngestRoot = fmt.Sprintf("s3://%s/handbook", e2eBucket)
	cfg.IngestInterval = 0
	cfg.APIKey = e2eAPIKey
	cfg.S3Endpoint = s3C.Endpoint()
	cfg.S3AccessKey = s3C.AccessKey
	cfg.S3SecretKey = s3C.SecretKey
	cfg.Workers = 2
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid config: %v", err)
	}

	env := &E2ETestEnv{
		T:           t,
		Ctx:         ctx,
		PostgresC:   pgC,
		RustFSC:     s3C,
		Pool:        pool,
		Config:      cfg,
		EmbedServer: embedSrv,
		S3Client:    s3Client,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
	env.startServer()

	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.serverCloser != nil {
		e.serverCloser()
	}
	if e.pipeline != nil {
		e.pipeline.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// PutDocument uploads a document under the handbook prefix.
func (e *E2ETestEnv) PutDocument(name, content string) {
	_, err := e.S3Client.PutObject(e.Ctx, &s3.PutObjectInput{
		Bucket: aws.String(e2eBucket),
		Key:    aws.String("handbook/" + name),
		Body:   strings.NewReader(content),
	})
	if err != nil {
		e.T.Fatalf("failed to upload %s: %v", name, err)
	}
}

// CountChunks returns the number of stored chunks of corpus.
func (e *E2ETestEnv) CountChunks(corpus string) int {
	var n int
	err := e.Pool.QueryRow(e.Ctx, fmt.Sprintf(`SELECT count(*) FROM %q WHERE corpus_id = $1`, e.Config.CollectionPrefix+corpus), corpus).Scan(&n)
	if err != nil {
		e.T.Fatalf("failed to count chunks: %v", err)
	}
	return n
}

// BuildBinaries builds the ragsync and ragsyncd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "ragsync-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"ragsync", "ragsyncd"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// Run runs a built binary with the environment pointing at the test services.
func (e *E2ETestEnv) Run(binary string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, binary), args...)
	cmd.Env = append(os.Environ(),
		"RAGSYNC_INDEX_BACKEND=pgvector",
		"RAGSYNC_DATABASE_URL="+e.Config.DatabaseURL,
		"RAGSYNC_EMBED_BASE_URL="+e.Config.EmbedBaseURL,
		fmt.Sprintf("RAGSYNC_EMBED_DIMENSIONS=%d", e2eDimension),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), fmt.Errorf("%w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status int
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body any, authToken string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body any, authToken string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{Status: resp.StatusCode}
	if err := json.Unmarshal(respBody, apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, respBody)
	}
	return apiResp, nil
}

func (e *E2ETestEnv) startServer() {
	p, err := cli.NewPipeline(e.Ctx, e.Config, nil, cli.PipelineOptions{Migrate: true})
	if err != nil {
		e.T.Fatalf("failed to build pipeline: %v", err)
	}
	e.pipeline = p

	handler, _, err := admin.NewAPI(e.Ctx, e.Config, p, nil)
	if err != nil {
		e.T.Fatalf("failed to build api: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		e.T.Fatalf("failed to get free port: %v", err)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	e.ServerURL = fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, e.ServerURL, 10*time.Second)

	e.serverCloser = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// newKeywordEmbeddingServer serves an OpenAI-compatible embeddings endpoint that
// hashes words into buckets, so texts sharing words score higher.
func newKeywordEmbeddingServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		data := make([]map[string]any, len(req.Input))
		for i, in := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": keywordVector(in)}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func keywordVector(text string) []float32 {
	v := make([]float32, e2eDimension)
	v[0] = 0.01
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z')
	}) {
		if len(word) < 4 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		v[1+h.Sum32()%(e2eDimension-1)]++
	}
	return v
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
