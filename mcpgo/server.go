// Package mcpgo adapts a mark3labs/mcp-go server to the instrumentation
// layer's registration surface. Registrations added through the wrapper flow
// through replaceable registrars, so instrumenting the wrapper intercepts
// every handler before the underlying server captures it. Handlers keep
// their mcp-go signatures; results and errors pass through unchanged.
package mcpgo

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/shinzo-labs/shinzo-go/instrument"
)

// Server wraps an mcp-go MCPServer with replaceable registrars for tools,
// resources, and prompts. The zero registrars register directly with the
// underlying server; instrumentation swaps them for wrapping versions.
type Server struct {
	*mcpserver.MCPServer

	mu                sync.Mutex
	toolRegistrar     instrument.RegistrarFunc
	resourceRegistrar instrument.RegistrarFunc
	promptRegistrar   instrument.RegistrarFunc

	pendingTools     map[string]mcp.Tool
	pendingResources map[string]mcp.Resource
	pendingPrompts   map[string]mcp.Prompt
}

// Wrap presents an existing MCPServer through the replaceable-registrar
// surface. Registrations made on the wrapper after instrumentation are
// observed; registrations made directly on the inner server are not.
func Wrap(inner *mcpserver.MCPServer) *Server {
	s := &Server{
		MCPServer:        inner,
		pendingTools:     make(map[string]mcp.Tool),
		pendingResources: make(map[string]mcp.Resource),
		pendingPrompts:   make(map[string]mcp.Prompt),
	}
	s.toolRegistrar = s.registerTool
	s.resourceRegistrar = s.registerResource
	s.promptRegistrar = s.registerPrompt
	return s
}

// NewServer creates a fresh MCPServer and wraps it.
func NewServer(name, version string, opts ...mcpserver.ServerOption) *Server {
	return Wrap(mcpserver.NewMCPServer(name, version, opts...))
}

// AddTool registers a tool handler through the tool registrar chain.
func (s *Server) AddTool(tool mcp.Tool, handler mcpserver.ToolHandlerFunc) {
	s.mu.Lock()
	s.pendingTools[tool.Name] = tool
	registrar := s.toolRegistrar
	s.mu.Unlock()

	registrar(tool.Name, func(ctx context.Context, req instrument.Request) (any, error) {
		request, _ := req.Payload.(mcp.CallToolRequest)
		return handler(ctx, request)
	})
}

// AddResource registers a resource handler through the resource registrar
// chain.
func (s *Server) AddResource(resource mcp.Resource, handler mcpserver.ResourceHandlerFunc) {
	s.mu.Lock()
	s.pendingResources[resource.URI] = resource
	registrar := s.resourceRegistrar
	s.mu.Unlock()

	registrar(resource.URI, func(ctx context.Context, req instrument.Request) (any, error) {
		request, _ := req.Payload.(mcp.ReadResourceRequest)
		return handler(ctx, request)
	})
}

// AddPrompt registers a prompt handler through the prompt registrar chain.
func (s *Server) AddPrompt(prompt mcp.Prompt, handler mcpserver.PromptHandlerFunc) {
	s.mu.Lock()
	s.pendingPrompts[prompt.Name] = prompt
	registrar := s.promptRegistrar
	s.mu.Unlock()

	registrar(prompt.Name, func(ctx context.Context, req instrument.Request) (any, error) {
		request, _ := req.Payload.(mcp.GetPromptRequest)
		return handler(ctx, request)
	})
}

// registerTool is the innermost tool registrar: it converts the neutral
// handler back to the mcp-go signature and registers it with the underlying
// server.
func (s *Server) registerTool(name string, handler instrument.Handler) {
	s.mu.Lock()
	tool := s.pendingTools[name]
	delete(s.pendingTools, name)
	s.mu.Unlock()

	s.MCPServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := handler(ctx, instrument.Request{
			Name:      request.Params.Name,
			Arguments: request.GetArguments(),
			Payload:   request,
		})
		typed, _ := result.(*mcp.CallToolResult)
		return typed, err
	})
}

func (s *Server) registerResource(uri string, handler instrument.Handler) {
	s.mu.Lock()
	resource := s.pendingResources[uri]
	delete(s.pendingResources, uri)
	s.mu.Unlock()

	s.MCPServer.AddResource(resource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		result, err := handler(ctx, instrument.Request{
			URI:     request.Params.URI,
			Payload: request,
		})
		typed, _ := result.([]mcp.ResourceContents)
		return typed, err
	})
}

func (s *Server) registerPrompt(name string, handler instrument.Handler) {
	s.mu.Lock()
	prompt := s.pendingPrompts[name]
	delete(s.pendingPrompts, name)
	s.mu.Unlock()

	s.MCPServer.AddPrompt(prompt, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		result, err := handler(ctx, instrument.Request{
			Name:      request.Params.Name,
			Arguments: promptArguments(request.Params.Arguments),
			Payload:   request,
		})
		typed, _ := result.(*mcp.GetPromptResult)
		return typed, err
	})
}

// Registrar accessors, the replaceable-registrar integration surface.

func (s *Server) ToolRegistrar() instrument.RegistrarFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolRegistrar
}

func (s *Server) SetToolRegistrar(registrar instrument.RegistrarFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolRegistrar = registrar
}

func (s *Server) ResourceRegistrar() instrument.RegistrarFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resourceRegistrar
}

func (s *Server) SetResourceRegistrar(registrar instrument.RegistrarFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceRegistrar = registrar
}

func (s *Server) PromptRegistrar() instrument.RegistrarFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promptRegistrar
}

func (s *Server) SetPromptRegistrar(registrar instrument.RegistrarFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promptRegistrar = registrar
}

func promptArguments(args map[string]string) map[string]any {
	if len(args) == 0 {
		return nil
	}
	converted := make(map[string]any, len(args))
	for key, value := range args {
		converted[key] = value
	}
	return converted
}
