// Package testutil starts the backing services used by integration and e2e tests.
package testutil

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloo-solutions/ragsync/internal/database"
)

const (
	pgvectorImage = "pgvector/pgvector:0.8.1-pg18"
	qdrantImage   = "qdrant/qdrant:v1.14.0"
	rustfsImage   = "rustfs/rustfs:latest"

	pgCredential     = "ragsync"
	rustfsCredential = "rustfsadmin"
)

// start runs req and returns the container with its host and the mapped port of exposed.
func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, exposed string) (testcontainers.Container, string, string) {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start %s", req.Image)

	host, err := c.Host(ctx)
	require.NoError(t, err, "%s host", req.Image)
	port, err := c.MappedPort(ctx, nat.Port(exposed))
	require.NoError(t, err, "%s port %s", req.Image, exposed)

	return c, host, port.Port()
}

// PostgresContainer is a pgvector-enabled PostgreSQL server.
type PostgresContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
	User      string
	Password  string
	Database  string
}

// NewPostgresContainer starts PostgreSQL with the vector extension available.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	c, host, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        pgvectorImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgCredential,
			"POSTGRES_PASSWORD": pgCredential,
			"POSTGRES_DB":       pgCredential,
		},
		// The entrypoint restarts the server once after init.
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(time.Minute),
	}, "5432/tcp")

	return &PostgresContainer{
		Container: c,
		Host:      host,
		Port:      port,
		User:      pgCredential,
		Password:  pgCredential,
		Database:  pgCredential,
	}
}

// ConnectionString is a libpq URL usable by both pgx and golang-migrate.
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pc.User, pc.Password, pc.Host, pc.Port, pc.Database)
}

func (pc *PostgresContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(pc.Container)
}

// QdrantContainer is a Qdrant server reachable over gRPC.
type QdrantContainer struct {
	Container testcontainers.Container
	Host      string
	GRPCPort  int
}

// NewQdrantContainer starts Qdrant and waits for its REST readiness probe.
func NewQdrantContainer(ctx context.Context, t *testing.T) *QdrantContainer {
	c, host, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        qdrantImage,
		ExposedPorts: []string{"6333/tcp", "6334/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("6334/tcp"),
			wait.ForHTTP("/readyz").WithPort("6333/tcp"),
		).WithStartupTimeout(time.Minute),
	}, "6334/tcp")

	grpcPort, err := strconv.Atoi(port)
	require.NoError(t, err)

	return &QdrantContainer{Container: c, Host: host, GRPCPort: grpcPort}
}

func (qc *QdrantContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(qc.Container)
}

// RustFSContainer is an S3-compatible object store holding ingestion roots.
type RustFSContainer struct {
	Container testcontainers.Container
	Host      string
	Port      string
	AccessKey string
	SecretKey string
}

// NewRustFSContainer starts RustFS with static credentials.
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	c, host, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": rustfsCredential,
			"RUSTFS_SECRET_KEY": rustfsCredential,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000/tcp")

	return &RustFSContainer{
		Container: c,
		Host:      host,
		Port:      port,
		AccessKey: rustfsCredential,
		SecretKey: rustfsCredential,
	}
}

// Endpoint is the S3 API base URL.
func (rc *RustFSContainer) Endpoint() string {
	return "http://" + rc.Host + ":" + rc.Port
}

func (rc *RustFSContainer) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(rc.Container)
}

// NewTestPool migrates the container database and opens a pool on it.
// The pool is closed when the test ends.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer) *pgxpool.Pool {
	t.Helper()

	_, err := database.RunMigrations(pc.ConnectionString())
	require.NoError(t, err, "run migrations")

	pool, err := database.NewPool(ctx, database.Config{URL: pc.ConnectionString(), MaxConns: 8})
	require.NoError(t, err, "open pool")
	t.Cleanup(pool.Close)

	return pool
}

// TruncateAll drops every registered collection table and empties the
// registry and run log.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	rows, err := pool.Query(ctx, `SELECT name FROM rag_collections`)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("scan collections: %w", err)
	}

	for _, name := range names {
		if _, err := pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name)); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}
	if _, err := pool.Exec(ctx, `TRUNCATE TABLE rag_ingest_runs, rag_collections`); err != nil {
		return fmt.Errorf("truncate bookkeeping tables: %w", err)
	}
	return nil
}
