package monitoring

import (
	"context"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer opens one span per stage, nested under the run span.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps tp; a nil provider yields a no-op tracer.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer("github.com/banshee-data/radarloop/pipeline")}
}

// InitStdoutTracing builds a provider that pretty-prints finished spans to w
// (stdout when nil). The returned shutdown flushes pending spans.
func InitStdoutTracing(w io.Writer) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	if w == nil {
		w = os.Stdout
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	return tp, tp.Shutdown, nil
}

// ShutdownWithTimeout flushes tracing, logging rather than returning failures.
func ShutdownWithTimeout(shutdown func(context.Context) error) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		Warnw("tracing shutdown failed", "error", err)
	}
}

func (t *Tracer) Begin(ctx context.Context, stage string) context.Context {
	ctx, _ = t.tracer.Start(ctx, stage, trace.WithAttributes(attribute.String("stage", stage)))
	return ctx
}

func (t *Tracer) End(ctx context.Context, _ string, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *Tracer) Count(ctx context.Context, name string, n int) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(name, n))
}
