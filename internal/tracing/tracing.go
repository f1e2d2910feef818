// Package tracing wraps OpenTelemetry tracing for local diagnosis
// (SPEC_FULL.md §2's tracing row): this tool has no external collector, so
// spans are written to stdout rather than shipped to a backend. Grounded on
// the teacher's TracingProvider
// (_examples/pageza-alchemorsel-enterprise/internal/infrastructure/monitoring/tracing.go),
// stripped of the domain-specific DB/cache/AI span helpers that service has
// no equivalent of here.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider holds the process-wide tracer. A nil *Provider is valid and
// produces no-op spans, so callers in tests don't need to wire one up.
type Provider struct {
	tracer trace.Tracer
	tp     *sdktrace.TracerProvider
}

// NewProvider builds a Provider that writes spans to stdout as
// newline-delimited JSON, one line per finished span.
func NewProvider(serviceName string) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tracer: tp.Tracer(serviceName), tp: tp}, nil
}

// StartSpan starts a span named for the orchestrator operation it wraps. A
// nil Provider (used by callers that don't need tracing, e.g. unit tests)
// returns the incoming context and a no-op span, exactly as the teacher's
// TracingProvider does when tracing is disabled.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if p == nil || p.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Shutdown flushes any buffered spans and releases the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
