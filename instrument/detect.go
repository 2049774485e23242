package instrument

import "context"

// Handler is the neutral shape of an MCP operation handler. Adapters convert
// their transport's request and response types at the boundary; Payload
// carries the typed request through untouched so nothing is lost in the
// round trip.
type Handler func(ctx context.Context, req Request) (any, error)

// Request is the neutral view of one MCP operation invocation.
type Request struct {
	// Name is the tool or prompt name for tools/call and prompts/get.
	Name string

	// URI is the resource URI for resources/read.
	URI string

	// Arguments are the call arguments, when the transport exposes them.
	Arguments map[string]any

	// Payload is the transport's original request value, passed through to
	// the delegate unmodified.
	Payload any
}

// RegistrarFunc registers a handler under a name. Registration-style servers
// expose one per operation family.
type RegistrarFunc func(name string, handler Handler)

// Registration-style surfaces: the server exposes a replaceable registrar
// per family, and instrumentation intercepts at registration time, before
// the server captures the handler.
type (
	ToolRegistrarServer interface {
		ToolRegistrar() RegistrarFunc
		SetToolRegistrar(RegistrarFunc)
	}

	ResourceRegistrarServer interface {
		ResourceRegistrar() RegistrarFunc
		SetResourceRegistrar(RegistrarFunc)
	}

	PromptRegistrarServer interface {
		PromptRegistrar() RegistrarFunc
		SetPromptRegistrar(RegistrarFunc)
	}
)

// Dispatch-style surfaces: the server exposes replaceable request-time
// dispatch handlers, and instrumentation swaps each for a wrapper that
// delegates to the original.
type (
	ToolDispatchServer interface {
		CallToolHandler() Handler
		SetCallToolHandler(Handler)
	}

	ResourceDispatchServer interface {
		ListResourcesHandler() Handler
		SetListResourcesHandler(Handler)
		ReadResourceHandler() Handler
		SetReadResourceHandler(Handler)
	}

	PromptDispatchServer interface {
		ListPromptsHandler() Handler
		SetListPromptsHandler(Handler)
		GetPromptHandler() Handler
		SetGetPromptHandler(Handler)
	}
)

// FamilyCapability reports which integration surfaces one operation family
// exposes. Both may be set; the server's own dispatch decides which path an
// individual request takes, and each installed wrapper observes its own path.
type FamilyCapability struct {
	Registrar bool
	Dispatch  bool
}

// Supported reports whether the family can be instrumented at all.
func (c FamilyCapability) Supported() bool {
	return c.Registrar || c.Dispatch
}

// Capabilities is the detection outcome for a server across all families.
type Capabilities struct {
	Tools     FamilyCapability
	Resources FamilyCapability
	Prompts   FamilyCapability
}

// Supported reports whether any family can be instrumented.
func (c Capabilities) Supported() bool {
	return c.Tools.Supported() || c.Resources.Supported() || c.Prompts.Supported()
}

// Detect classifies a server's capability surface. It is pure probing by
// type assertion; no server code runs and no state changes.
func Detect(server any) Capabilities {
	var c Capabilities

	if _, ok := server.(ToolRegistrarServer); ok {
		c.Tools.Registrar = true
	}
	if _, ok := server.(ToolDispatchServer); ok {
		c.Tools.Dispatch = true
	}

	if _, ok := server.(ResourceRegistrarServer); ok {
		c.Resources.Registrar = true
	}
	if _, ok := server.(ResourceDispatchServer); ok {
		c.Resources.Dispatch = true
	}

	if _, ok := server.(PromptRegistrarServer); ok {
		c.Prompts.Registrar = true
	}
	if _, ok := server.(PromptDispatchServer); ok {
		c.Prompts.Dispatch = true
	}

	return c
}
