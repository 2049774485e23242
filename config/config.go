package config

import (
	"fmt"
)

// Exporter types for traces and metrics.
const (
	ExporterOTLPHTTP   = "otlp-http"
	ExporterConsole    = "console"
	ExporterPrometheus = "prometheus"
)

// Auth types for the OTLP/session backend.
const (
	AuthBearer = "bearer"
	AuthAPIKey = "apiKey"
	AuthBasic  = "basic"
)

// Defaults applied by Default and by Telemetry.ApplyDefaults.
const (
	DefaultExporterEndpoint       = "https://api.app.shinzo.ai/telemetry/ingest_http"
	DefaultSamplingRate           = 1.0
	DefaultMetricExportIntervalMS = 60000
	DefaultBatchTimeoutMS         = 30000
)

// Auth holds authentication settings for the exporter and the session
// backend. Type selects which of the remaining fields are required.
type Auth struct {
	// Type is one of "bearer", "apiKey", or "basic".
	Type string `yaml:"type"`

	// Token is the bearer token (required for "bearer").
	Token string `yaml:"token"`

	// APIKey is sent as the X-API-Key header (required for "apiKey").
	APIKey string `yaml:"api_key"`

	// Username and Password are required for "basic".
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Processor transforms a telemetry attribute map before emission.
// Processors run in order, each receiving the previous one's output.
type Processor func(map[string]any) map[string]any

// Sanitizer redacts sensitive values from a telemetry record.
// Implementations must be pure; a panicking sanitizer is treated as
// "return the original" by the callers (fail-open).
type Sanitizer interface {
	Sanitize(data map[string]any) map[string]any
}

// Telemetry is the configuration surface consumed by the instrumentation
// core. Start from Default() and override fields; boolean toggles default
// to the original SDK's behavior (metrics, tracing, and argument collection
// on, PII sanitization off).
type Telemetry struct {
	// ServerName identifies the instrumented MCP server. Required.
	ServerName string `yaml:"server_name"`

	// ServerVersion is the instrumented server's version. Required.
	ServerVersion string `yaml:"server_version"`

	// ExporterEndpoint is the base URL of the OTLP-compatible backend.
	ExporterEndpoint string `yaml:"exporter_endpoint"`

	// ExporterAuth configures authentication for the exporter and the
	// session backend. Optional.
	ExporterAuth *Auth `yaml:"exporter_auth"`

	// ExporterType selects the trace exporter: "otlp-http" or "console".
	ExporterType string `yaml:"exporter_type"`

	// MetricsExporter selects the metrics exporter: "otlp-http",
	// "console", or "prometheus". Empty means "same as ExporterType".
	MetricsExporter string `yaml:"metrics_exporter"`

	// SamplingRate is the trace sampling ratio in [0.0, 1.0].
	SamplingRate float64 `yaml:"sampling_rate"`

	// MetricExportIntervalMS is the periodic metric export interval.
	MetricExportIntervalMS int `yaml:"metric_export_interval_ms"`

	// BatchTimeoutMS bounds span batch and metric export timeouts.
	BatchTimeoutMS int `yaml:"batch_timeout_ms"`

	EnableMetrics            bool `yaml:"enable_metrics"`
	EnableTracing            bool `yaml:"enable_tracing"`
	EnablePIISanitization    bool `yaml:"enable_pii_sanitization"`
	EnableArgumentCollection bool `yaml:"enable_argument_collection"`

	// DataProcessors are applied, in order, to every attribute set before
	// emission. Not loadable from YAML.
	DataProcessors []Processor `yaml:"-"`

	// PIISanitizer overrides the default sanitizer when
	// EnablePIISanitization is set. Not loadable from YAML.
	PIISanitizer Sanitizer `yaml:"-"`
}

// Default returns a Telemetry config with the SDK defaults. ServerName and
// ServerVersion must still be set by the caller.
func Default() Telemetry {
	return Telemetry{
		ExporterEndpoint:         DefaultExporterEndpoint,
		ExporterType:             ExporterOTLPHTTP,
		SamplingRate:             DefaultSamplingRate,
		MetricExportIntervalMS:   DefaultMetricExportIntervalMS,
		BatchTimeoutMS:           DefaultBatchTimeoutMS,
		EnableMetrics:            true,
		EnableTracing:            true,
		EnableArgumentCollection: true,
	}
}

// ApplyDefaults fills zero-valued non-boolean fields with the SDK defaults.
// Boolean toggles are left as given.
func (c *Telemetry) ApplyDefaults() {
	if c.ExporterEndpoint == "" {
		c.ExporterEndpoint = DefaultExporterEndpoint
	}
	if c.ExporterType == "" {
		c.ExporterType = ExporterOTLPHTTP
	}
	if c.MetricsExporter == "" {
		c.MetricsExporter = c.ExporterType
	}
	if c.MetricExportIntervalMS == 0 {
		c.MetricExportIntervalMS = DefaultMetricExportIntervalMS
	}
	if c.BatchTimeoutMS == 0 {
		c.BatchTimeoutMS = DefaultBatchTimeoutMS
	}
}

// Validate checks the configuration. It is called by the facade before any
// handler is wrapped; a non-nil error means the server stays untouched.
func (c *Telemetry) Validate() error {
	if c.ServerName == "" {
		return fmt.Errorf("server_name is required")
	}
	if c.ServerVersion == "" {
		return fmt.Errorf("server_version is required")
	}

	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0.0 and 1.0, got %f", c.SamplingRate)
	}

	switch c.ExporterType {
	case "", ExporterOTLPHTTP, ExporterConsole:
	default:
		return fmt.Errorf("invalid exporter_type %q, must be one of: otlp-http, console", c.ExporterType)
	}

	switch c.MetricsExporter {
	case "", ExporterOTLPHTTP, ExporterConsole, ExporterPrometheus:
	default:
		return fmt.Errorf("invalid metrics_exporter %q, must be one of: otlp-http, console, prometheus", c.MetricsExporter)
	}

	if c.ExporterType == ExporterOTLPHTTP && c.ExporterEndpoint == "" {
		return fmt.Errorf("exporter_endpoint is required for otlp-http exporter")
	}

	if c.MetricExportIntervalMS < 0 {
		return fmt.Errorf("metric_export_interval_ms must not be negative")
	}
	if c.BatchTimeoutMS < 0 {
		return fmt.Errorf("batch_timeout_ms must not be negative")
	}

	if c.ExporterAuth != nil {
		if err := c.ExporterAuth.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that the sub-fields required by the auth type are present.
func (a *Auth) Validate() error {
	switch a.Type {
	case AuthBearer:
		if a.Token == "" {
			return fmt.Errorf("token is required for bearer auth")
		}
	case AuthAPIKey:
		if a.APIKey == "" {
			return fmt.Errorf("api_key is required for apiKey auth")
		}
	case AuthBasic:
		if a.Username == "" || a.Password == "" {
			return fmt.Errorf("username and password are required for basic auth")
		}
	default:
		return fmt.Errorf("invalid auth type %q, must be one of: bearer, apiKey, basic", a.Type)
	}
	return nil
}
