package serve

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// NewTracerProvider creates a TracerProvider that exports completed spans
// as structured log records, and installs it as the global provider so the
// executor's per-stage spans are captured.
//
// A SimpleSpanProcessor is used for immediate export without batching:
// the span volume here is one short trace per agent request, and losing
// buffered spans on shutdown would hide exactly the requests worth seeing.
//
// The returned shutdown function must be called before exit.
func NewTracerProvider(logger *slog.Logger) (*sdktrace.TracerProvider, func(context.Context) error) {
	if logger == nil {
		logger = slog.Default()
	}

	exporter := &logSpanExporter{logger: logger}
	processor := sdktrace.NewSimpleSpanProcessor(exporter)

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String("exposuregraph"),
		),
	)
	if err != nil {
		logger.Warn("failed to create trace resource, using default", "error", err)
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp, tp.Shutdown
}

// logSpanExporter writes completed spans to the structured logger. On a
// stdio transport there is no span collector to ship to; the logger (on
// stderr) is the one observable channel that does not corrupt the protocol.
type logSpanExporter struct {
	logger *slog.Logger
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *logSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		attrs := make([]any, 0, 8+2*len(span.Attributes()))
		attrs = append(attrs,
			"trace_id", span.SpanContext().TraceID().String(),
			"span_id", span.SpanContext().SpanID().String(),
			"duration", span.EndTime().Sub(span.StartTime()),
			"status", span.Status().Code.String(),
		)
		for _, kv := range span.Attributes() {
			attrs = append(attrs, string(kv.Key), kv.Value.Emit())
		}
		e.logger.Debug("span "+span.Name(), attrs...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *logSpanExporter) Shutdown(ctx context.Context) error {
	return nil
}
