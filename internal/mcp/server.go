// Package mcp exposes corpus search over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cloo-solutions/ragsync/internal/domain"
	"github.com/cloo-solutions/ragsync/internal/service"
)

// Version is the MCP server version.
const Version = "0.1.0"

// ErrMissingQueryService is returned when no query service is provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")

type QueryService interface {
	Query(ctx context.Context, corpus, text string, k int) ([]domain.SearchHit, error)
}

type HealthChecker interface {
	Check(ctx context.Context) service.HealthInfo
}

// Ports groups the services the MCP tools call. Health is optional.
type Ports struct {
	Query         QueryService
	Health        HealthChecker
	DefaultCorpus string
}

// Server is the ragsync MCP server.
type Server struct {
	ports  Ports
	server *mcp.Server
}

// NewServer creates a new MCP server with rag_search and, when available, rag_health.
func NewServer(ports Ports) (*Server, error) {
	if ports.Query == nil {
		return nil, ErrMissingQueryService
	}
	if ports.DefaultCorpus == "" {
		ports.DefaultCorpus = domain.DefaultCorpus
	}

	s := &Server{
		ports: ports,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "ragsync",
			Version: Version,
		}, nil),
	}
	s.registerTools()

	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
