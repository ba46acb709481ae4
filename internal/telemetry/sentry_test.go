package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"

	"github.com/cloo-solutions/ragsync/internal/domain"
)

func TestInit_EmptyDSN(t *testing.T) {
	shutdown, err := Init(Config{})
	assert.NoError(t, err)
	assert.NotNil(t, shutdown)
	shutdown()
}

func TestSpan_SetError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status sentry.SpanStatus
	}{
		{"validation", domain.ErrInvalidCorpus, domain.ErrCodeValidation, sentry.SpanStatusInvalidArgument},
		{"conversion", domain.Wrap(domain.ErrCorruptDocument, errors.New("zip")), domain.ErrCodeConversion, sentry.SpanStatusFailedPrecondition},
		{"embedding", domain.ErrEmbeddingFailed, domain.ErrCodeEmbedding, sentry.SpanStatusUnavailable},
		{"index", domain.ErrUpsertFailed, domain.ErrCodeIndex, sentry.SpanStatusUnavailable},
		{"plain", errors.New("boom"), domain.ErrCodeInternalError, sentry.SpanStatusInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, span := StartSpan(context.Background(), "test", SpanAttributes{Corpus: "docs", DocumentID: "d-1"})
			span.SetError(tt.err)

			assert.Equal(t, tt.status, span.inner.Status)
			assert.Equal(t, tt.code, span.inner.Tags["error_code"])
			assert.Equal(t, "docs", span.inner.Tags["corpus_id"])
			span.End()
		})
	}
}

func TestSpan_ZeroValueIsNoop(t *testing.T) {
	var span Span
	assert.NotPanics(t, func() {
		span.SetError(errors.New("x"))
		span.SetWarning("y")
		span.SetCount("hits", 3)
		span.End()
	})
}

func TestSampler(t *testing.T) {
	sample := sampler(0.25)

	health := sentry.StartSpan(context.Background(), "GET /health", sentry.WithTransactionName("GET /health"))
	defer health.Finish()
	assert.Zero(t, sample(sentry.SamplingContext{Span: health}))

	root := sentry.StartSpan(context.Background(), "IngestService.Run", sentry.WithTransactionName("IngestService.Run"))
	defer root.Finish()
	assert.Equal(t, 0.25, sample(sentry.SamplingContext{Span: root}))
}
