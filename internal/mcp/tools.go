package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cloo-solutions/ragsync/internal/service"
)

// SearchInput is the input schema for rag_search.
type SearchInput struct {
	Query    string `json:"query" jsonschema:"the natural-language question to search for"`
	CorpusID string `json:"corpus_id,omitempty" jsonschema:"corpus to search (default: server default corpus)"`
	TopK     int    `json:"top_k,omitempty" jsonschema:"maximum number of chunks to return (default 8, at most 100)"`
}

// SearchOutput is the output schema for rag_search.
type SearchOutput struct {
	Items []SearchItem `json:"items"`
}

// SearchItem is one retrieved chunk.
type SearchItem struct {
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	SourcePath string  `json:"source_path"`
	Section    string  `json:"section,omitempty"`
	DocumentID string  `json:"doc_id"`
	ChunkID    string  `json:"chunk_id"`
}

// HealthInput is the empty input of rag_health.
type HealthInput struct{}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "rag_search",
		Description: "Retrieve the document chunks most similar to a query from one corpus",
	}, s.handleSearch)

	if s.ports.Health != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "rag_health",
			Description: "Report the index backend, embedding endpoint and model in use",
		}, s.handleHealth)
	}
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	corpus := input.CorpusID
	if corpus == "" {
		corpus = s.ports.DefaultCorpus
	}
	topK := service.ResolveTopK(input.TopK)

	hits, err := s.ports.Query.Query(ctx, corpus, input.Query, topK)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Items: make([]SearchItem, len(hits))}
	for i, h := range hits {
		out.Items[i] = SearchItem{
			Text:       h.Payload.Text,
			Score:      h.Score,
			SourcePath: h.Payload.SourcePath,
			Section:    h.Payload.Section,
			DocumentID: h.Payload.DocumentID,
			ChunkID:    h.ID,
		}
	}
	return nil, out, nil
}

func (s *Server) handleHealth(ctx context.Context, _ *mcp.CallToolRequest, _ HealthInput) (*mcp.CallToolResult, service.HealthInfo, error) {
	return nil, s.ports.Health.Check(ctx), nil
}
