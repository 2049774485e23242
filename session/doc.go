// Package session correlates observed MCP operations into logical sessions
// and streams the resulting events to a backend, fire-and-forget. At most
// one session is active at a time; re-enabling replaces it. Transport
// failures never reach the handler that produced an event.
package session
