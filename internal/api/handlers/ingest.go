package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/cloo-solutions/ragsync/internal/api"
	"github.com/cloo-solutions/ragsync/internal/domain"
	"github.com/cloo-solutions/ragsync/internal/service"
)

type IngestService interface {
	Run(ctx context.Context, req service.IngestRequest) (*service.IngestSummary, error)
}

type IngestRunLister interface {
	List(ctx context.Context, corpus string, limit int) ([]service.IngestRun, error)
}

type IngestHandler struct {
	svc           IngestService
	runs          IngestRunLister
	defaultCorpus string
}

// NewIngestHandler creates the ingestion handler. svc is nil when no ingestion
// root is configured; runs is nil without a database.
func NewIngestHandler(svc IngestService, runs IngestRunLister, defaultCorpus string) *IngestHandler {
	if defaultCorpus == "" {
		defaultCorpus = domain.DefaultCorpus
	}
	return &IngestHandler{svc: svc, runs: runs, defaultCorpus: defaultCorpus}
}

type IngestRequest struct {
	CorpusID string `json:"corpus_id,omitempty"`
}

type DocumentFailure struct {
	Path   string `json:"path"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type IngestResponse struct {
	Summary  *service.IngestSummary `json:"summary"`
	Failures []DocumentFailure      `json:"failures,omitempty"`
}

// Ingest runs one ingestion pass synchronously. An empty body uses the default corpus.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.svc == nil {
		api.HandleError(w, domain.ErrIngestNotConfigured)
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	corpus := req.CorpusID
	if corpus == "" {
		corpus = h.defaultCorpus
	}

	var failures []DocumentFailure
	summary, err := h.svc.Run(r.Context(), service.IngestRequest{
		Corpus: corpus,
		Progress: func(res service.DocumentResult) {
			if res.Err == nil {
				return
			}
			failures = append(failures, DocumentFailure{
				Path:   res.Path,
				Status: string(res.Status),
				Error:  res.Err.Error(),
			})
		},
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, IngestResponse{Summary: summary, Failures: failures})
}

// ListRuns returns recent ingestion passes, optionally filtered by corpus_id.
func (h *IngestHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		api.Error(w, http.StatusNotFound, "ingestion history requires a database")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), r.URL.Query().Get("corpus_id"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, runs)
}
