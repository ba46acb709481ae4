// Package telemetry wires Sentry tracing and slog logging for the pipeline.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

const serviceName = "ragsync"

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN              string
	Environment      string
	TracesSampleRate float64
	Debug            bool
}

// Init initializes Sentry with tracing enabled and returns a flush function.
// An empty DSN, or a DSN Sentry rejects, yields a no-op.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.TracesSampleRate == 0 {
		cfg.TracesSampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: cfg.TracesSampleRate,
		Debug:            cfg.Debug,
		ServerName:       serviceName,
		TracesSampler:    sampler(cfg.TracesSampleRate),
	})
	if err != nil {
		slog.Warn("sentry: failed to initialize, continuing without tracing", "error", err)
		return func() {}, nil
	}

	slog.Info("sentry: tracing initialized", "environment", cfg.Environment, "sample_rate", cfg.TracesSampleRate)
	return func() { sentry.Flush(5 * time.Second) }, nil
}

// sampler drops health probes and keeps document and query spans with their parent.
func sampler(rate float64) sentry.TracesSampler {
	return func(ctx sentry.SamplingContext) float64 {
		if ctx.Span.Name == "GET /health" {
			return 0
		}
		var root sentry.SpanID
		if ctx.Span.ParentSpanID != root {
			if ctx.Span.Sampled.Bool() {
				return 1
			}
			return 0
		}
		return rate
	}
}

// SpanAttributes are the pipeline identifiers attached to a span.
type SpanAttributes struct {
	Corpus     string
	Collection string
	DocumentID string
	SourcePath string
	Operation  string
}

// Span wraps sentry.Span. A zero Span is a no-op.
type Span struct {
	inner *sentry.Span
}

// StartSpan starts a child of the span in ctx, or a new transaction when there is none.
func StartSpan(ctx context.Context, name string, attrs SpanAttributes) (context.Context, *Span) {
	var span *sentry.Span
	if parent := sentry.SpanFromContext(ctx); parent != nil {
		span = parent.StartChild(name)
	} else {
		span = sentry.StartSpan(ctx, name, sentry.WithTransactionName(name))
	}

	if attrs.Corpus != "" {
		span.SetTag("corpus_id", attrs.Corpus)
	}
	if attrs.Collection != "" {
		span.SetTag("collection", attrs.Collection)
	}
	if attrs.DocumentID != "" {
		span.SetTag("doc_id", attrs.DocumentID)
	}
	if attrs.SourcePath != "" {
		span.SetData("source_path", attrs.SourcePath)
	}
	if attrs.Operation != "" {
		span.SetData("operation", attrs.Operation)
	}

	return span.Context(), &Span{inner: span}
}

// End finishes the span.
func (s *Span) End() {
	if s.inner != nil {
		s.inner.Finish()
	}
}

// SetCount records a result size such as chunks written or hits returned.
func (s *Span) SetCount(key string, n int) {
	if s.inner != nil {
		s.inner.SetData(key, n)
	}
}

// SetError tags the span with the domain error code. Validation and conversion
// errors are caller input problems and are not reported as exceptions.
func (s *Span) SetError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	code := domain.ErrorCode(err)
	if code == "" {
		code = domain.ErrCodeInternalError
	}
	s.inner.SetTag("error_code", code)

	switch code {
	case domain.ErrCodeValidation:
		s.inner.Status = sentry.SpanStatusInvalidArgument
		return
	case domain.ErrCodeConversion:
		s.inner.Status = sentry.SpanStatusFailedPrecondition
		return
	case domain.ErrCodeEmbedding, domain.ErrCodeIndex:
		s.inner.Status = sentry.SpanStatusUnavailable
	default:
		s.inner.Status = sentry.SpanStatusInternalError
	}
	if hub := sentry.GetHubFromContext(s.inner.Context()); hub != nil {
		hub.CaptureException(err)
	}
}

// SetWarning marks a per-document outcome that does not abort the surrounding batch.
func (s *Span) SetWarning(reason string) {
	if s.inner != nil {
		s.inner.Status = sentry.SpanStatusFailedPrecondition
		s.inner.SetData("warning", reason)
	}
}
