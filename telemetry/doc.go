// Package telemetry configures the OpenTelemetry tracer and meter providers
// for an instrumented MCP server and exposes the span and metric operations
// the instrumentation layer emits through. Attribute values pass through the
// configured data processors and PII sanitizer before export; a failure in
// either stage is logged and skipped, never surfaced to the handler.
package telemetry
