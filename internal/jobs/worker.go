// Package jobs runs periodic background ingestion inside ragsyncd.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// JobProcessor does one unit of periodic work.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker calls its processor on a fixed interval until stopped. Ticks that
// fire while a pass is running are dropped by the ticker, not queued.
type Worker struct {
	processor  JobProcessor
	interval   time.Duration
	runOnStart bool
	logger     *slog.Logger

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type WorkerOption func(*Worker)

// WithRunOnStart processes once immediately instead of waiting for the first tick.
func WithRunOnStart() WorkerOption {
	return func(w *Worker) { w.runOnStart = true }
}

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func NewWorker(processor JobProcessor, interval time.Duration, opts ...WorkerOption) *Worker {
	w := &Worker{
		processor: processor,
		interval:  interval,
		logger:    slog.Default(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start blocks until ctx is cancelled or Stop is called. Stop also cancels
// the context of a pass in progress.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	w.logger.Info("ingest worker started", "interval", w.interval)
	if w.runOnStart {
		w.runPass(ctx)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ingest worker stopped")
			return
		case <-ticker.C:
			w.runPass(ctx)
		}
	}
}

func (w *Worker) runPass(ctx context.Context) {
	began := time.Now()
	if err := w.processor.ProcessJobs(ctx); err != nil {
		if ctx.Err() != nil {
			w.logger.Info("ingest pass interrupted", "error", err)
			return
		}
		w.logger.Error("ingest pass failed", "error", err, "elapsed", time.Since(began))
	}
}

// Stop signals Start to return and waits for it. It is safe to call more than
// once, and after ctx passed to Start is already done.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
