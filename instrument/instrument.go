package instrument

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shinzo-labs/shinzo-go/config"
	"github.com/shinzo-labs/shinzo-go/session"
	"github.com/shinzo-labs/shinzo-go/telemetry"
)

// Handle is the lifecycle surface returned by Instrument. It owns the
// telemetry manager and session tracker created for the server and must be
// shut down to flush buffered telemetry.
type Handle struct {
	telemetry    *telemetry.Manager
	tracker      *session.Tracker
	instrumentor *Instrumentor
	caps         Capabilities

	shutdownOnce sync.Once
	shutdownErr  error
}

// Instrument attaches observability to server. Configuration errors are
// returned before any wrapping occurs, leaving the server untouched. Missing
// capability surfaces degrade to logged warnings per operation family.
func Instrument(ctx context.Context, server any, cfg config.Telemetry) (*Handle, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	manager, err := telemetry.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tracker := session.NewTracker(session.NewHTTPSink(cfg))
	instrumentor := NewInstrumentor(cfg, manager, tracker, slog.Default())

	h := &Handle{
		telemetry:    manager,
		tracker:      tracker,
		instrumentor: instrumentor,
	}
	h.caps = instrumentor.Apply(server)

	slog.Info("server instrumented",
		"server_name", cfg.ServerName,
		"server_version", cfg.ServerVersion,
		"tools", h.caps.Tools.Supported(),
		"resources", h.caps.Resources.Supported(),
		"prompts", h.caps.Prompts.Supported(),
	)

	return h, nil
}

// IsInstrumented reports whether at least one handler family was wrapped.
func (h *Handle) IsInstrumented() bool {
	return h.instrumentor.IsInstrumented()
}

// Capabilities returns what was detected on the instrumented server.
func (h *Handle) Capabilities() Capabilities {
	return h.caps
}

// EnableSessionTracking starts a logical session, superseding any active
// one. A blank sessionUUID generates one. The returned session carries the
// effective UUID.
func (h *Handle) EnableSessionTracking(sessionUUID string, metadata map[string]any) session.Session {
	return h.tracker.Enable(sessionUUID, metadata)
}

// DisableSessionTracking clears the active session. Subsequent operations
// produce spans and metrics but no session events.
func (h *Handle) DisableSessionTracking() {
	h.tracker.Disable()
}

// Telemetry exposes the underlying manager for manual span or metric
// emission alongside the automatic instrumentation.
func (h *Handle) Telemetry() *telemetry.Manager {
	return h.telemetry
}

// Tracker exposes the session tracker for manual event appends.
func (h *Handle) Tracker() *session.Tracker {
	return h.tracker
}

// Instrumentor exposes the wrapping layer for manual handler wrapping where
// a server offers no replaceable surface.
func (h *Handle) Instrumentor() *Instrumentor {
	return h.instrumentor
}

// Shutdown drains session events and buffered telemetry, bounded by ctx.
// It is idempotent; later calls return the first result.
func (h *Handle) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.shutdownErr = errors.Join(
			h.tracker.Shutdown(ctx),
			h.telemetry.Shutdown(ctx),
		)
	})
	return h.shutdownErr
}
