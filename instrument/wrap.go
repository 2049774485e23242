package instrument

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shinzo-labs/shinzo-go/config"
	"github.com/shinzo-labs/shinzo-go/sanitize"
	"github.com/shinzo-labs/shinzo-go/session"
)

// Instrumentor wraps handlers for one server. It is safe for concurrent use;
// wrapping decisions are resolved at install time, so the per-call hot path
// touches no Instrumentor state beyond the shared tracker and emitter.
type Instrumentor struct {
	cfg       config.Telemetry
	emitter   Emitter
	tracker   *session.Tracker
	sanitizer config.Sanitizer
	logger    *slog.Logger
	state     *state
}

// NewInstrumentor creates an Instrumentor emitting through emitter and
// appending session events to tracker. tracker may be nil to disable session
// logging entirely. cfg must already be validated.
func NewInstrumentor(cfg config.Telemetry, emitter Emitter, tracker *session.Tracker, logger *slog.Logger) *Instrumentor {
	if logger == nil {
		logger = slog.Default()
	}

	var sanitizer config.Sanitizer
	if cfg.EnablePIISanitization {
		sanitizer = cfg.PIISanitizer
		if sanitizer == nil {
			sanitizer = sanitize.New()
		}
	}

	return &Instrumentor{
		cfg:       cfg,
		emitter:   emitter,
		tracker:   tracker,
		sanitizer: sanitizer,
		logger:    logger,
		state:     newState(),
	}
}

// Apply detects server's capability surfaces and installs wrappers on every
// family it finds, logging a warning for each family it cannot reach. It
// returns the detected capabilities. Apply is idempotent: a second call
// finds only already-wrapped callables and changes nothing.
func (i *Instrumentor) Apply(server any) Capabilities {
	caps := Detect(server)

	if installed := i.installTools(server); !installed {
		i.logger.Warn("no tool surface found, skipping tool instrumentation")
	}
	if installed := i.installResources(server); !installed {
		i.logger.Warn("no resource surface found, skipping resource instrumentation")
	}
	if installed := i.installPrompts(server); !installed {
		i.logger.Warn("no prompt surface found, skipping prompt instrumentation")
	}

	if caps.Supported() {
		i.state.setInstrumented()
	}
	return caps
}

func (i *Instrumentor) installTools(server any) bool {
	installed := false
	if s, ok := server.(ToolRegistrarServer); ok {
		if registrar := s.ToolRegistrar(); registrar != nil {
			s.SetToolRegistrar(i.wrapRegistrar(KindToolCall, registrar))
			installed = true
		}
	}
	if s, ok := server.(ToolDispatchServer); ok {
		if handler := s.CallToolHandler(); handler != nil {
			s.SetCallToolHandler(i.WrapHandler(KindToolCall, "", handler))
			installed = true
		}
	}
	return installed
}

func (i *Instrumentor) installResources(server any) bool {
	installed := false
	if s, ok := server.(ResourceRegistrarServer); ok {
		if registrar := s.ResourceRegistrar(); registrar != nil {
			s.SetResourceRegistrar(i.wrapRegistrar(KindResourceRead, registrar))
			installed = true
		}
	}
	if s, ok := server.(ResourceDispatchServer); ok {
		if handler := s.ListResourcesHandler(); handler != nil {
			s.SetListResourcesHandler(i.WrapHandler(KindResourceList, SentinelListResources, handler))
			installed = true
		}
		if handler := s.ReadResourceHandler(); handler != nil {
			s.SetReadResourceHandler(i.WrapHandler(KindResourceRead, "", handler))
			installed = true
		}
	}
	return installed
}

func (i *Instrumentor) installPrompts(server any) bool {
	installed := false
	if s, ok := server.(PromptRegistrarServer); ok {
		if registrar := s.PromptRegistrar(); registrar != nil {
			s.SetPromptRegistrar(i.wrapRegistrar(KindPromptGet, registrar))
			installed = true
		}
	}
	if s, ok := server.(PromptDispatchServer); ok {
		if handler := s.ListPromptsHandler(); handler != nil {
			s.SetListPromptsHandler(i.WrapHandler(KindPromptList, SentinelListPrompts, handler))
			installed = true
		}
		if handler := s.GetPromptHandler(); handler != nil {
			s.SetGetPromptHandler(i.WrapHandler(KindPromptGet, "", handler))
			installed = true
		}
	}
	return installed
}

// wrapRegistrar returns a registrar that instruments every handler passed to
// it before delegating to the original registration. Already-wrapped
// registrars are returned unchanged.
func (i *Instrumentor) wrapRegistrar(kind Kind, registrar RegistrarFunc) RegistrarFunc {
	if i.state.isWrapped(registrar) {
		return registrar
	}

	wrapped := RegistrarFunc(func(name string, handler Handler) {
		registrar(name, i.WrapHandler(kind, name, handler))
	})

	// All closures from this literal share one code pointer, so marking one
	// instance makes every future instance recognizably wrapped.
	i.state.markWrapped(wrapped)
	return wrapped
}

// WrapHandler returns a handler that observes every invocation of handler:
// span around the delegate, invocation counter, duration histogram, and a
// session event once the delegate settles. The delegate's result and error
// are returned unchanged. Wrapping is idempotent per callable identity.
func (i *Instrumentor) WrapHandler(kind Kind, declaredName string, handler Handler) Handler {
	if handler == nil {
		return nil
	}
	if i.state.isWrapped(handler) {
		return handler
	}

	wrapped := Handler(func(ctx context.Context, req Request) (any, error) {
		rec := &OperationRecord{
			Kind:          kind,
			Name:          resolveName(kind, declaredName, req),
			RequestID:     uuid.NewString(),
			ClientAddress: ClientAddressFromContext(ctx),
			StartedAt:     time.Now(),
		}
		if i.cfg.EnableArgumentCollection {
			rec.Arguments = req.Arguments
		}

		spanCtx, span := i.emitter.StartSpan(ctx, rec.SpanName(), BuildAttributes(rec)...)

		start := time.Now()
		result, err := handler(spanCtx, req)
		rec.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)

		// A call cancelled before the delegate settled leaves no record:
		// close the span and hand the cancellation back untouched.
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			span.End()
			return result, err
		}

		rec.Result = result
		rec.Err = err

		i.emitter.EndSpan(span, err)
		settled := BuildAttributes(rec)
		i.emitter.AddCount(spanCtx, rec.CounterName(), 1, settled...)
		i.emitter.RecordDuration(spanCtx, rec.DurationMS, settled...)
		i.appendSessionEvent(rec)

		return result, err
	})

	i.state.markWrapped(wrapped)
	return wrapped
}

// resolveName extracts the operation's identifier. For resources/read and
// prompts/get the identifier comes from the request, not the name the
// handler was registered under.
func resolveName(kind Kind, declaredName string, req Request) string {
	switch kind {
	case KindResourceList:
		return SentinelListResources
	case KindPromptList:
		return SentinelListPrompts
	case KindResourceRead:
		if req.URI != "" {
			return req.URI
		}
	default:
		if req.Name != "" {
			return req.Name
		}
	}
	return declaredName
}

// appendSessionEvent builds and appends the event for a settled call. The
// tracker drops it if no session is active.
func (i *Instrumentor) appendSessionEvent(rec *OperationRecord) {
	if i.tracker == nil {
		return
	}
	if _, active := i.tracker.Active(); !active {
		return
	}

	event := session.Event{
		Timestamp:  rec.StartedAt,
		DurationMS: int64(rec.DurationMS),
		Metadata:   map[string]any{"method": rec.Kind.MethodName()},
	}

	switch rec.Kind {
	case KindToolCall:
		event.ToolName = rec.Name
		if rec.Err != nil {
			event.EventType = session.EventToolCall
		} else {
			event.EventType = session.EventToolResponse
		}
	case KindResourceList:
		event.EventType = session.EventResourceList
		event.ResourceURI = rec.Name
	case KindResourceRead:
		event.EventType = session.EventResourceRead
		event.ResourceURI = rec.Name
	case KindPromptList:
		event.EventType = session.EventPromptList
		event.ToolName = rec.Name
	case KindPromptGet:
		event.EventType = session.EventPromptGet
		event.ToolName = rec.Name
	}

	if i.cfg.EnableArgumentCollection {
		event.InputData = i.sanitizeMap(rec.Arguments)
		if rec.Err == nil {
			event.OutputData = i.sanitizeValue(rec.Result)
		}
	}

	if rec.Err != nil {
		event.Error = &session.EventError{
			Type:    errorType(rec.Err),
			Message: i.sanitizeString(rec.Err.Error()),
		}
	}

	i.tracker.Append(event)
}

// sanitizeMap runs data through the sanitizer, fail-open: a panicking
// sanitizer is logged and the original data used.
func (i *Instrumentor) sanitizeMap(data map[string]any) (out map[string]any) {
	if data == nil || i.sanitizer == nil {
		return data
	}
	out = data
	defer func() {
		if r := recover(); r != nil {
			i.logger.Warn("sanitizer panicked, using unsanitized data", "panic", r)
		}
	}()
	if sanitized := i.sanitizer.Sanitize(data); sanitized != nil {
		out = sanitized
	}
	return out
}

// sanitizeValue sanitizes a single value by boxing it into a one-key map.
func (i *Instrumentor) sanitizeValue(value any) any {
	if value == nil || i.sanitizer == nil {
		return value
	}
	boxed := i.sanitizeMap(map[string]any{"value": value})
	return boxed["value"]
}

func (i *Instrumentor) sanitizeString(s string) string {
	sanitized, ok := i.sanitizeValue(s).(string)
	if !ok {
		return s
	}
	return sanitized
}

// IsInstrumented reports whether Apply has wrapped at least one family.
func (i *Instrumentor) IsInstrumented() bool {
	return i.state.isInstrumented()
}
