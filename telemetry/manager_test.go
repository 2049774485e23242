package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shinzo-labs/shinzo-go/config"
)

func consoleConfig() config.Telemetry {
	cfg := config.Default()
	cfg.ServerName = "test-server"
	cfg.ServerVersion = "0.0.1"
	cfg.ExporterType = config.ExporterConsole
	cfg.MetricsExporter = config.ExporterConsole
	return cfg
}

// quietConfig disables both signals so tests exercise the attribute pipeline
// without exporters writing to stdout.
func quietConfig() config.Telemetry {
	cfg := consoleConfig()
	cfg.EnableTracing = false
	cfg.EnableMetrics = false
	return cfg
}

func TestNewConsole(t *testing.T) {
	m, err := New(context.Background(), consoleConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, m.SessionID())
	assert.Nil(t, m.PrometheusHandler())

	ctx, span := m.StartSpan(context.Background(), "tools/call echo",
		attribute.String("mcp.tool.name", "echo"))
	m.AddCount(ctx, "mcp.server.tools.call.echo", 1)
	m.RecordDuration(ctx, 12.5)
	m.EndSpan(span, nil)

	require.NoError(t, m.Shutdown(context.Background()))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := consoleConfig()
	cfg.ServerName = ""
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server_name")
}

func TestShutdownIdempotent(t *testing.T) {
	m, err := New(context.Background(), quietConfig())
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestShutdownConcurrent(t *testing.T) {
	m, err := New(context.Background(), consoleConfig())
	require.NoError(t, err)

	const callers = 8
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.Shutdown(context.Background())
		}(i)
	}
	wg.Wait()

	// Every caller gets the single shutdown's result.
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
	}
}

func TestProcessAttributesStampsSessionID(t *testing.T) {
	m, err := New(context.Background(), quietConfig())
	require.NoError(t, err)

	out := m.ProcessAttributes([]attribute.KeyValue{
		attribute.String("mcp.tool.name", "echo"),
	})

	values := attrValues(out)
	assert.Equal(t, "echo", values["mcp.tool.name"])
	assert.Equal(t, m.SessionID(), values["mcp.session.id"])
}

func TestProcessAttributesRunsProcessorsInOrder(t *testing.T) {
	cfg := quietConfig()
	cfg.DataProcessors = []config.Processor{
		func(data map[string]any) map[string]any {
			data["step"] = "one"
			return data
		},
		func(data map[string]any) map[string]any {
			data["step"] = data["step"].(string) + "-two"
			return data
		},
	}

	m, err := New(context.Background(), cfg)
	require.NoError(t, err)

	values := attrValues(m.ProcessAttributes(nil))
	assert.Equal(t, "one-two", values["step"])
}

func TestProcessAttributesPanickingProcessorIsSkipped(t *testing.T) {
	cfg := quietConfig()
	cfg.DataProcessors = []config.Processor{
		func(data map[string]any) map[string]any {
			panic("processor bug")
		},
		func(data map[string]any) map[string]any {
			data["survived"] = true
			return data
		},
	}

	m, err := New(context.Background(), cfg)
	require.NoError(t, err)

	values := attrValues(m.ProcessAttributes([]attribute.KeyValue{
		attribute.String("kept", "yes"),
	}))
	assert.Equal(t, "yes", values["kept"])
	assert.Equal(t, "true", values["survived"])
}

func TestProcessAttributesSanitizes(t *testing.T) {
	cfg := quietConfig()
	cfg.EnablePIISanitization = true

	m, err := New(context.Background(), cfg)
	require.NoError(t, err)

	values := attrValues(m.ProcessAttributes([]attribute.KeyValue{
		attribute.String("mcp.request.argument.email", "user@example.com"),
	}))
	assert.Equal(t, "[REDACTED]", values["mcp.request.argument.email"])
}

type panickingSanitizer struct{}

func (panickingSanitizer) Sanitize(data map[string]any) map[string]any {
	panic("sanitizer bug")
}

func TestProcessAttributesSanitizerFailsOpen(t *testing.T) {
	cfg := quietConfig()
	cfg.EnablePIISanitization = true
	cfg.PIISanitizer = panickingSanitizer{}

	m, err := New(context.Background(), cfg)
	require.NoError(t, err)

	values := attrValues(m.ProcessAttributes([]attribute.KeyValue{
		attribute.String("mcp.request.argument.email", "user@example.com"),
	}))
	assert.Equal(t, "user@example.com", values["mcp.request.argument.email"])
}

func TestEndSpanWithError(t *testing.T) {
	m, err := New(context.Background(), quietConfig())
	require.NoError(t, err)

	_, span := m.StartSpan(context.Background(), "tools/call boom")
	m.EndSpan(span, errors.New("bad input"))

	_, span = m.StartSpan(context.Background(), "tools/call fine")
	m.EndSpan(span, nil)
}

func TestEndpointDerivation(t *testing.T) {
	assert.Equal(t, "https://api.example.com/ingest/traces", traceEndpoint("https://api.example.com/ingest"))
	assert.Equal(t, "https://api.example.com/ingest/metrics", metricEndpoint("https://api.example.com/ingest/"))
}

func TestAuthHeaders(t *testing.T) {
	assert.Nil(t, authHeaders(nil))

	bearer := authHeaders(&config.Auth{Type: config.AuthBearer, Token: "tok"})
	assert.Equal(t, "Bearer tok", bearer["Authorization"])

	apiKey := authHeaders(&config.Auth{Type: config.AuthAPIKey, APIKey: "key"})
	assert.Equal(t, "key", apiKey["X-API-Key"])

	basic := authHeaders(&config.Auth{Type: config.AuthBasic, Username: "u", Password: "p"})
	assert.Equal(t, "Basic dTpw", basic["Authorization"])
}

func attrValues(attrs []attribute.KeyValue) map[string]string {
	values := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		values[string(kv.Key)] = kv.Value.Emit()
	}
	return values
}
