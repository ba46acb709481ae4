package service

import (
	"context"
	"time"
)

// IngestRun is a persisted ingestion pass summary.
type IngestRun struct {
	ID         string        `json:"id"`
	Summary    IngestSummary `json:"summary"`
	FinishedAt time.Time     `json:"finished_at"`
}

// IngestRunRepository persists ingestion pass summaries.
type IngestRunRepository interface {
	CreateIngestRun(ctx context.Context, summary *IngestSummary, finishedAt time.Time) (string, error)
	ListIngestRuns(ctx context.Context, corpus string, limit int) ([]IngestRun, error)
}

// DefaultIngestRunLimit caps run history listings when callers pass no limit.
const DefaultIngestRunLimit = 20

// IngestRunService reads the ingestion history.
type IngestRunService struct {
	repo IngestRunRepository
}

// NewIngestRunService creates a new IngestRunService instance
func NewIngestRunService(repo IngestRunRepository) *IngestRunService {
	return &IngestRunService{repo: repo}
}

// List returns the most recent runs for corpus, newest first. An empty corpus lists all.
func (s *IngestRunService) List(ctx context.Context, corpus string, limit int) ([]IngestRun, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultIngestRunLimit
	}
	runs, err := s.repo.ListIngestRuns(ctx, corpus, limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []IngestRun{}
	}
	return runs, nil
}
