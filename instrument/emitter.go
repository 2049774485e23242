package instrument

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Emitter is the telemetry surface the wrappers emit through. All operations
// are buffered by the implementation and must never block or fail the
// wrapped call path. *telemetry.Manager satisfies this.
type Emitter interface {
	// StartSpan opens a span; the caller ends it through EndSpan.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// EndSpan sets the span's status from err and ends it. ERROR status is
	// set if and only if err is non-nil.
	EndSpan(span trace.Span, err error)

	// AddCount increments the named counter.
	AddCount(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue)

	// RecordDuration records an operation duration in milliseconds.
	RecordDuration(ctx context.Context, ms float64, attrs ...attribute.KeyValue)
}
