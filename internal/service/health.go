package service

import (
	"context"
	"time"
)

// IndexPinger is implemented by index backends that can report reachability.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// HealthInfo describes the pipeline configuration reported by health endpoints.
type HealthInfo struct {
	Status           string `json:"status"`
	Index            string `json:"index"`
	IndexError       string `json:"index_error,omitempty"`
	EmbeddingURL     string `json:"embedding_url"`
	Model            string `json:"model"`
	CollectionPrefix string `json:"collection_prefix"`
	Dimension        int    `json:"dimension"`
}

// HealthService reports configuration and index reachability.
type HealthService struct {
	info  HealthInfo
	index VectorIndex
}

// NewHealthService creates a new HealthService instance
func NewHealthService(info HealthInfo, index VectorIndex) *HealthService {
	return &HealthService{info: info, index: index}
}

// Check returns the static info plus a live index probe when the backend supports one.
// The status is "degraded" when the probe fails.
func (s *HealthService) Check(ctx context.Context) HealthInfo {
	info := s.info
	info.Status = "ok"

	pinger, ok := s.index.(IndexPinger)
	if !ok {
		return info
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pinger.Ping(pingCtx); err != nil {
		info.Status = "degraded"
		info.IndexError = err.Error()
	}
	return info
}
