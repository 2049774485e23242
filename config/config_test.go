package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Telemetry {
	cfg := Default()
	cfg.ServerName = "test-server"
	cfg.ServerVersion = "1.0.0"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultExporterEndpoint, cfg.ExporterEndpoint)
	assert.Equal(t, ExporterOTLPHTTP, cfg.ExporterType)
	assert.Equal(t, 1.0, cfg.SamplingRate)
	assert.True(t, cfg.EnableMetrics)
	assert.True(t, cfg.EnableTracing)
	assert.True(t, cfg.EnableArgumentCollection)
	assert.False(t, cfg.EnablePIISanitization)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Telemetry)
		wantErr string
	}{
		{"valid", func(c *Telemetry) {}, ""},
		{"missing server name", func(c *Telemetry) { c.ServerName = "" }, "server_name is required"},
		{"missing server version", func(c *Telemetry) { c.ServerVersion = "" }, "server_version is required"},
		{"sampling rate too high", func(c *Telemetry) { c.SamplingRate = 1.5 }, "sampling_rate"},
		{"sampling rate negative", func(c *Telemetry) { c.SamplingRate = -0.1 }, "sampling_rate"},
		{"bad exporter type", func(c *Telemetry) { c.ExporterType = "carrier-pigeon" }, "invalid exporter_type"},
		{"bad metrics exporter", func(c *Telemetry) { c.MetricsExporter = "graphite" }, "invalid metrics_exporter"},
		{"bearer without token", func(c *Telemetry) { c.ExporterAuth = &Auth{Type: AuthBearer} }, "token is required"},
		{"apiKey without key", func(c *Telemetry) { c.ExporterAuth = &Auth{Type: AuthAPIKey} }, "api_key is required"},
		{"basic without password", func(c *Telemetry) { c.ExporterAuth = &Auth{Type: AuthBasic, Username: "u"} }, "username and password"},
		{"unknown auth type", func(c *Telemetry) { c.ExporterAuth = &Auth{Type: "magic"} }, "invalid auth type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Telemetry{ExporterType: ExporterConsole}
	cfg.ApplyDefaults()

	assert.Equal(t, ExporterConsole, cfg.MetricsExporter, "metrics exporter follows exporter type")
	assert.Equal(t, DefaultMetricExportIntervalMS, cfg.MetricExportIntervalMS)
	assert.Equal(t, DefaultBatchTimeoutMS, cfg.BatchTimeoutMS)
	assert.Equal(t, DefaultExporterEndpoint, cfg.ExporterEndpoint)

	// Boolean toggles are left as given.
	assert.False(t, cfg.EnableMetrics)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telemetry.yaml")
	content := `
server_name: loaded-server
server_version: 2.1.0
exporter_type: console
sampling_rate: 0.25
enable_pii_sanitization: true
exporter_auth:
  type: bearer
  token: tok-123
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "loaded-server", cfg.ServerName)
	assert.Equal(t, "2.1.0", cfg.ServerVersion)
	assert.Equal(t, ExporterConsole, cfg.ExporterType)
	assert.Equal(t, ExporterConsole, cfg.MetricsExporter)
	assert.Equal(t, 0.25, cfg.SamplingRate)
	assert.True(t, cfg.EnablePIISanitization)
	require.NotNil(t, cfg.ExporterAuth)
	assert.Equal(t, AuthBearer, cfg.ExporterAuth.Type)
	assert.Equal(t, "tok-123", cfg.ExporterAuth.Token)

	// Unset fields keep their defaults.
	assert.Equal(t, DefaultBatchTimeoutMS, cfg.BatchTimeoutMS)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
