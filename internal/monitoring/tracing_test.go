package monitoring

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracer_SpanPerStage(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tr := NewTracer(tp)

	runCtx := tr.Begin(context.Background(), StageRun)
	ctx := tr.Begin(runCtx, "SYNCING")
	tr.Count(ctx, "selected", 2)
	tr.End(ctx, "SYNCING", nil)
	ctx = tr.Begin(runCtx, "DECODING_RENDERING")
	tr.End(ctx, "DECODING_RENDERING", errors.New("truncated"))
	tr.End(runCtx, StageRun, nil)

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "SYNCING", spans[0].Name())
	assert.Equal(t, spans[2].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, StageRun, spans[2].Name())
}

func TestInitStdoutTracing(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := InitStdoutTracing(&buf)
	require.NoError(t, err)

	tr := NewTracer(tp)
	tr.End(tr.Begin(context.Background(), "LISTING"), "LISTING", nil)
	ShutdownWithTimeout(shutdown)

	assert.Contains(t, buf.String(), `"Name": "LISTING"`)
}

func TestNewTracer_NilProvider(t *testing.T) {
	tr := NewTracer(nil)
	ctx := tr.Begin(context.Background(), "X")
	tr.End(ctx, "X", nil)
}
