package telemetry

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/shinzo-labs/shinzo-go/config"
	"github.com/shinzo-labs/shinzo-go/sanitize"
)

// Manager owns the OpenTelemetry tracer and meter providers for one
// instrumented server, plus the attribute processing pipeline (data
// processors, PII sanitization). It implements the emitter operations the
// instrumentation core consumes.
type Manager struct {
	cfg       config.Telemetry
	sessionID string
	startedAt time.Time

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	prometheusExporter *promexporter.Exporter

	sanitizer config.Sanitizer

	durations metric.Float64Histogram
	counters  *counterCache

	shutdownOnce sync.Once
	shutdownErr  error
}

// New validates cfg, initializes exporters, and returns a ready Manager.
// With tracing or metrics disabled the corresponding provider is a no-op.
func New(ctx context.Context, cfg config.Telemetry) (*Manager, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		startedAt: time.Now(),
		tracer:    tracenoop.NewTracerProvider().Tracer(cfg.ServerName),
		meter:     metricnoop.NewMeterProvider().Meter(cfg.ServerName),
	}

	if cfg.EnablePIISanitization {
		m.sanitizer = cfg.PIISanitizer
		if m.sanitizer == nil {
			m.sanitizer = sanitize.New()
		}
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServerName),
		semconv.ServiceVersion(cfg.ServerVersion),
		attribute.String("mcp.session.id", m.sessionID),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if cfg.EnableTracing {
		if err := m.initTracing(ctx, res); err != nil {
			return nil, err
		}
	}

	if cfg.EnableMetrics {
		if err := m.initMetrics(ctx, res); err != nil {
			if m.tracerProvider != nil {
				err = errors.Join(err, m.tracerProvider.Shutdown(ctx))
			}
			return nil, err
		}
	}

	m.counters = newCounterCache(m.meter)

	m.durations, err = m.meter.Float64Histogram(
		"mcp.server.operation.duration",
		metric.WithDescription("MCP request or notification duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	return m, nil
}

func (m *Manager) initTracing(ctx context.Context, res *resource.Resource) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch m.cfg.ExporterType {
	case config.ExporterConsole:
		exporter, err = stdouttrace.New()
		if err != nil {
			return fmt.Errorf("failed to create console trace exporter: %w", err)
		}
	default:
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpointURL(traceEndpoint(m.cfg.ExporterEndpoint)),
		}
		if headers := authHeaders(m.cfg.ExporterAuth); len(headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(headers))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
	}

	sampler := sdktrace.ParentBased(
		sdktrace.TraceIDRatioBased(m.cfg.SamplingRate),
	)

	m.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(time.Duration(m.cfg.BatchTimeoutMS)*time.Millisecond),
		),
		sdktrace.WithSampler(sampler),
	)
	m.tracer = m.tracerProvider.Tracer(m.cfg.ServerName,
		trace.WithInstrumentationVersion(m.cfg.ServerVersion),
	)

	return nil
}

func (m *Manager) initMetrics(ctx context.Context, res *resource.Resource) error {
	var reader sdkmetric.Reader

	switch m.cfg.MetricsExporter {
	case config.ExporterPrometheus:
		exporter, err := promexporter.New()
		if err != nil {
			return fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		m.prometheusExporter = exporter
		reader = exporter

	case config.ExporterConsole:
		exporter, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(time.Duration(m.cfg.MetricExportIntervalMS)*time.Millisecond),
		)

	default:
		opts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpointURL(metricEndpoint(m.cfg.ExporterEndpoint)),
		}
		if headers := authHeaders(m.cfg.ExporterAuth); len(headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(headers))
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(time.Duration(m.cfg.MetricExportIntervalMS)*time.Millisecond),
			sdkmetric.WithTimeout(time.Duration(m.cfg.BatchTimeoutMS)*time.Millisecond),
		)
	}

	m.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	m.meter = m.meterProvider.Meter(m.cfg.ServerName,
		metric.WithInstrumentationVersion(m.cfg.ServerVersion),
	)

	return nil
}

// SessionID returns the process-lifetime telemetry session identifier that
// stamps every span and metric via the resource and attribute pipeline.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// PrometheusHandler returns an HTTP handler serving the metrics endpoint,
// or nil when the prometheus exporter is not configured.
func (m *Manager) PrometheusHandler() http.Handler {
	if m.prometheusExporter == nil {
		return nil
	}
	return promhttp.Handler()
}

// ReportClientInfo counts a client connection by client name and version.
func (m *Manager) ReportClientInfo(ctx context.Context, name, version string) {
	if name == "" {
		name = "unknown"
	}
	if version == "" {
		version = "unknown"
	}
	m.AddCount(ctx, "mcp.client.connections", 1,
		attribute.String("mcp.client.name", name),
		attribute.String("mcp.client.version", version),
	)
}

// Flush drains buffered spans and metrics, bounded by ctx.
func (m *Manager) Flush(ctx context.Context) error {
	var errs []error
	if m.tracerProvider != nil {
		if err := m.tracerProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush tracer provider: %w", err))
		}
	}
	if m.meterProvider != nil {
		if err := m.meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown records the session duration, flushes, and releases the
// providers. It is safe for concurrent use and idempotent; later calls
// return the first result.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		m.recordSessionDuration(ctx)

		// Bound the drain so a stalled exporter cannot block process exit.
		drainCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.BatchTimeoutMS)*time.Millisecond)
		defer cancel()

		var errs []error
		if m.tracerProvider != nil {
			if err := m.tracerProvider.Shutdown(drainCtx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
			}
		}
		if m.meterProvider != nil {
			if err := m.meterProvider.Shutdown(drainCtx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
			}
		}

		m.shutdownErr = errors.Join(errs...)
	})
	return m.shutdownErr
}

func (m *Manager) recordSessionDuration(ctx context.Context) {
	if !m.cfg.EnableMetrics {
		return
	}
	hist, err := m.meter.Float64Histogram(
		"mcp.server.session.duration",
		metric.WithDescription("MCP server session duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return
	}
	hist.Record(ctx, time.Since(m.startedAt).Seconds(),
		metric.WithAttributes(attribute.String("mcp.session.id", m.sessionID)))
}

// traceEndpoint derives the span ingestion URL from the configured base.
func traceEndpoint(base string) string {
	return strings.TrimSuffix(base, "/") + "/traces"
}

// metricEndpoint derives the metric ingestion URL from the configured base.
func metricEndpoint(base string) string {
	return strings.TrimSuffix(base, "/") + "/metrics"
}

// authHeaders builds exporter headers for the configured auth type.
// Validation has already run, so missing sub-fields just yield no header.
func authHeaders(auth *config.Auth) map[string]string {
	if auth == nil {
		return nil
	}

	headers := map[string]string{}
	switch auth.Type {
	case config.AuthBearer:
		if auth.Token != "" {
			headers["Authorization"] = "Bearer " + auth.Token
		}
	case config.AuthAPIKey:
		if auth.APIKey != "" {
			headers["X-API-Key"] = auth.APIKey
		}
	case config.AuthBasic:
		if auth.Username != "" && auth.Password != "" {
			credentials := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
			headers["Authorization"] = "Basic " + credentials
		}
	}
	return headers
}
