// Package instrument wraps MCP server handlers with tracing, metrics, and
// session-event logging without changing their behavior. Servers expose one
// of two integration surfaces: registration-time interception (a replaceable
// registrar per operation family) or request-time dispatch (a replaceable
// handler per operation). Instrument detects which surfaces a server has,
// wraps each exactly once, and degrades to a logged warning for families it
// cannot reach. Wrapped handlers return the delegate's result and error
// unchanged; all telemetry failures are absorbed before they can reach the
// caller.
package instrument
