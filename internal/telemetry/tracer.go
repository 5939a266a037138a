// Package telemetry exports agent traces to Langfuse over OTLP/HTTP and
// reports unexpected errors to Sentry.
package telemetry

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracePath is the Langfuse OTLP ingestion endpoint, relative to the host.
const TracePath = "/api/public/otel/v1/traces"

const instrumentationName = "github.com/flemzord/tgmcp"

// Span names.
const (
	SpanAgentRun    = "agent.run"
	SpanLLMComplete = "llm.complete"
	SpanToolCall    = "tool.call"
)

// Tracer creates spans. The zero value is not usable; use NewTracer or Noop.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Noop returns a tracer that records nothing.
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
}

// NewTracer builds a tracer exporting batches to cfg.Host. It returns a
// no-op tracer when the keys are missing.
func NewTracer(ctx context.Context, cfg Config) (*Tracer, error) {
	cfg.defaults()
	if !cfg.Enabled() {
		return Noop(), nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.endpoint()),
		otlptracehttp.WithHeaders(map[string]string{
			"Authorization": basicAuth(cfg.PublicKey, cfg.SecretKey),
		}),
		otlptracehttp.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: otlp exporter: %w", err)
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
	return newTracer(tp), nil
}

func newTracer(tp *sdktrace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(instrumentationName), provider: tp}
}

// Enabled reports whether spans are exported.
func (t *Tracer) Enabled() bool {
	return t != nil && t.provider != nil
}

// Start opens a span as a child of any span in ctx.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Flush exports buffered spans.
func (t *Tracer) Flush(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	return t.provider.ForceFlush(ctx)
}

// Shutdown flushes and stops the exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	err := t.provider.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("telemetry: flushing spans timed out: %w", err)
	}
	return err
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// truncate keeps span payloads small.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func trimHost(host string) string {
	return strings.TrimRight(strings.TrimSpace(host), "/")
}
