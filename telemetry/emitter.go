package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan opens a server span after running attrs through the data
// processors and the PII sanitizer. Callers must End the returned span.
func (m *Manager) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(m.ProcessAttributes(attrs)...),
	)
}

// EndSpan records err (if any) on span and ends it.
func (m *Manager) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, fmt.Sprintf("%T", err))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddCount increments the named counter. Counters are created lazily and
// cached; creation failures disable that counter rather than the call path.
func (m *Manager) AddCount(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	counter := m.counters.get(name)
	if counter == nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(m.ProcessAttributes(attrs)...))
}

// RecordDuration records an operation duration in milliseconds.
func (m *Manager) RecordDuration(ctx context.Context, ms float64, attrs ...attribute.KeyValue) {
	m.durations.Record(ctx, ms, metric.WithAttributes(m.ProcessAttributes(attrs)...))
}

// ProcessAttributes runs attrs through the configured data processors and
// then the PII sanitizer, and stamps the telemetry session id. Processing is
// fail-open: a panicking processor or sanitizer is logged and its stage
// skipped, and the attributes continue through unmodified.
func (m *Manager) ProcessAttributes(attrs []attribute.KeyValue) []attribute.KeyValue {
	data := attributesToMap(attrs)

	for i, processor := range m.cfg.DataProcessors {
		if processed, ok := applyProcessor(processor, data); ok {
			data = processed
		} else {
			slog.Warn("data processor panicked, skipping", "processor_index", i)
		}
	}

	if m.sanitizer != nil {
		if sanitized, ok := applySanitizer(m.sanitizer, data); ok {
			data = sanitized
		} else {
			slog.Warn("sanitizer panicked, emitting unsanitized attributes")
		}
	}

	out := mapToAttributes(data)
	return append(out, attribute.String("mcp.session.id", m.sessionID))
}

func applyProcessor(processor func(map[string]any) map[string]any, data map[string]any) (result map[string]any, ok bool) {
	defer func() {
		if recover() != nil {
			result, ok = nil, false
		}
	}()
	if processed := processor(data); processed != nil {
		return processed, true
	}
	return data, true
}

func applySanitizer(sanitizer interface {
	Sanitize(map[string]any) map[string]any
}, data map[string]any) (result map[string]any, ok bool) {
	defer func() {
		if recover() != nil {
			result, ok = nil, false
		}
	}()
	if sanitized := sanitizer.Sanitize(data); sanitized != nil {
		return sanitized, true
	}
	return data, true
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	data := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		data[string(kv.Key)] = kv.Value.AsInterface()
	}
	return data
}

func mapToAttributes(data map[string]any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case string:
			attrs = append(attrs, attribute.String(key, v))
		case bool:
			attrs = append(attrs, attribute.Bool(key, v))
		case int:
			attrs = append(attrs, attribute.Int(key, v))
		case int64:
			attrs = append(attrs, attribute.Int64(key, v))
		case float64:
			attrs = append(attrs, attribute.Float64(key, v))
		case []string:
			attrs = append(attrs, attribute.StringSlice(key, v))
		default:
			attrs = append(attrs, attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
	return attrs
}

// counterCache creates Int64Counters on first use and reuses them after.
type counterCache struct {
	meter metric.Meter

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
}

func newCounterCache(meter metric.Meter) *counterCache {
	return &counterCache{
		meter:    meter,
		counters: make(map[string]metric.Int64Counter),
	}
}

func (c *counterCache) get(name string) metric.Int64Counter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, ok := c.counters[name]; ok {
		return counter
	}
	counter, err := c.meter.Int64Counter(name)
	if err != nil {
		slog.Warn("failed to create counter", "name", name, "error", err.Error())
		c.counters[name] = nil
		return nil
	}
	c.counters[name] = counter
	return counter
}
