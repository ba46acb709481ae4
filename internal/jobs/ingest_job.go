package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/cloo-solutions/ragsync/internal/service"
)

// Ingester runs one ingestion pass.
type Ingester interface {
	Run(ctx context.Context, req service.IngestRequest) (*service.IngestSummary, error)
}

// IngestJob re-ingests a corpus each time the worker ticks.
type IngestJob struct {
	ingester Ingester
	corpus   string
	logger   *slog.Logger
	running  atomic.Bool
}

// NewIngestJob creates a new IngestJob instance
func NewIngestJob(ingester Ingester, corpus string, logger *slog.Logger) *IngestJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestJob{ingester: ingester, corpus: corpus, logger: logger}
}

// ProcessJobs implements the JobProcessor interface. A tick that arrives while a
// pass is still running is skipped.
func (j *IngestJob) ProcessJobs(ctx context.Context) error {
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Info("previous ingestion pass still running, skipping tick", "corpus", j.corpus)
		return nil
	}
	defer j.running.Store(false)

	summary, err := j.ingester.Run(ctx, service.IngestRequest{Corpus: j.corpus})
	if err != nil {
		return fmt.Errorf("ingest corpus %s: %w", j.corpus, err)
	}
	if summary.Failed > 0 {
		j.logger.Warn("ingestion pass had failures", "corpus", j.corpus, "failed", summary.Failed)
	}
	return nil
}
