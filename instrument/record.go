package instrument

import (
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Kind identifies the MCP operation a wrapped handler serves.
type Kind int

const (
	KindToolCall Kind = iota
	KindResourceList
	KindResourceRead
	KindPromptList
	KindPromptGet
)

// Sentinel names for operations that carry no distinguishing argument.
const (
	SentinelListResources = "list_resources"
	SentinelListPrompts   = "list_prompts"
)

// MethodName returns the MCP wire method for a kind.
func (k Kind) MethodName() string {
	switch k {
	case KindToolCall:
		return "tools/call"
	case KindResourceList:
		return "resources/list"
	case KindResourceRead:
		return "resources/read"
	case KindPromptList:
		return "prompts/list"
	case KindPromptGet:
		return "prompts/get"
	default:
		return "unknown"
	}
}

// named reports whether operations of this kind carry a per-item identifier.
func (k Kind) named() bool {
	return k == KindToolCall || k == KindResourceRead || k == KindPromptGet
}

// OperationRecord captures one observed handler invocation. Exactly one
// record exists per underlying call; it is built by the wrapper and discarded
// after emission.
type OperationRecord struct {
	Kind          Kind
	Name          string
	RequestID     string
	ClientAddress string

	// Arguments is populated only when argument collection is enabled.
	Arguments map[string]any

	Result any
	Err    error

	StartedAt  time.Time
	DurationMS float64
}

// SpanName returns the span name for the record: "{method} {name}" for
// name-bearing operations, the bare method for lists.
func (r *OperationRecord) SpanName() string {
	if r.Kind.named() && r.Name != "" {
		return r.Kind.MethodName() + " " + r.Name
	}
	return r.Kind.MethodName()
}

// CounterName returns the per-operation invocation counter name.
func (r *OperationRecord) CounterName() string {
	method := strings.ReplaceAll(r.Kind.MethodName(), "/", ".")
	name := strings.ReplaceAll(r.Name, " ", "_")
	return "mcp.server." + method + "." + name
}

// BuildAttributes maps a record onto the telemetry attribute schema. It is
// deterministic and performs no I/O.
func BuildAttributes(r *OperationRecord) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("mcp.method.name", r.Kind.MethodName()),
		attribute.String("mcp.request.id", r.RequestID),
		attribute.String("gen_ai.system", "mcp"),
	}

	switch r.Kind {
	case KindToolCall:
		attrs = append(attrs, attribute.String("mcp.tool.name", r.Name))
	case KindResourceList, KindResourceRead:
		attrs = append(attrs, attribute.String("mcp.resource.uri", r.Name))
	case KindPromptList, KindPromptGet:
		attrs = append(attrs, attribute.String("mcp.prompt.name", r.Name))
	}

	if r.ClientAddress != "" {
		attrs = append(attrs, attribute.String("client.address", r.ClientAddress))
	}

	for key, value := range r.Arguments {
		attrs = append(attrs, argumentAttribute("mcp.request.argument."+key, value))
	}

	if r.Err != nil {
		attrs = append(attrs, attribute.String("error.type", errorType(r.Err)))
	}

	return attrs
}

// argumentAttribute converts one collected argument to an attribute,
// stringifying anything without a native attribute representation.
func argumentAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// errorType returns the error's category discriminator. The error text never
// appears in attributes; payloads may carry sensitive data.
func errorType(err error) string {
	return fmt.Sprintf("%T", err)
}
