package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cloo-solutions/ragsync/internal/api"
	"github.com/cloo-solutions/ragsync/internal/domain"
	"github.com/cloo-solutions/ragsync/internal/service"
)

type QueryService interface {
	Query(ctx context.Context, corpus, text string, k int) ([]domain.SearchHit, error)
}

type SearchHandler struct {
	svc           QueryService
	defaultCorpus string
}

func NewSearchHandler(svc QueryService, defaultCorpus string) *SearchHandler {
	if defaultCorpus == "" {
		defaultCorpus = domain.DefaultCorpus
	}
	return &SearchHandler{svc: svc, defaultCorpus: defaultCorpus}
}

type SearchRequest struct {
	Query    string `json:"query"`
	CorpusID string `json:"corpus_id,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
}

type SearchResultResponse struct {
	ID          string  `json:"id"`
	Score       float32 `json:"score"`
	DocumentID  string  `json:"doc_id"`
	SourcePath  string  `json:"source_path"`
	ChunkIndex  int     `json:"chunk_index"`
	Section     string  `json:"section,omitempty"`
	Text        string  `json:"text"`
	ContentHash string  `json:"content_hash,omitempty"`
	IngestedAt  string  `json:"ingested_at,omitempty"`
}

type SearchResponse struct {
	CorpusID string                  `json:"corpus_id"`
	Results  []*SearchResultResponse `json:"results"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	corpus := req.CorpusID
	if corpus == "" {
		corpus = h.defaultCorpus
	}
	topK := service.ResolveTopK(req.TopK)

	hits, err := h.svc.Query(r.Context(), corpus, req.Query, topK)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	results := make([]*SearchResultResponse, len(hits))
	for i, hit := range hits {
		ingestedAt := ""
		if hit.Payload.IngestedAt > 0 {
			ingestedAt = time.Unix(hit.Payload.IngestedAt, 0).UTC().Format(time.RFC3339)
		}
		results[i] = &SearchResultResponse{
			ID:          hit.ID,
			Score:       hit.Score,
			DocumentID:  hit.Payload.DocumentID,
			SourcePath:  hit.Payload.SourcePath,
			ChunkIndex:  hit.Payload.ChunkIndex,
			Section:     hit.Payload.Section,
			Text:        hit.Payload.Text,
			ContentHash: hit.Payload.ContentHash,
			IngestedAt:  ingestedAt,
		}
	}

	api.Success(w, http.StatusOK, SearchResponse{CorpusID: corpus, Results: results})
}
