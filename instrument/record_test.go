package instrument

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestMethodNames(t *testing.T) {
	assert.Equal(t, "tools/call", KindToolCall.MethodName())
	assert.Equal(t, "resources/list", KindResourceList.MethodName())
	assert.Equal(t, "resources/read", KindResourceRead.MethodName())
	assert.Equal(t, "prompts/list", KindPromptList.MethodName())
	assert.Equal(t, "prompts/get", KindPromptGet.MethodName())
}

func TestSpanName(t *testing.T) {
	read := &OperationRecord{Kind: KindResourceRead, Name: "file:///config/settings.json"}
	assert.Equal(t, "resources/read file:///config/settings.json", read.SpanName())

	list := &OperationRecord{Kind: KindResourceList, Name: SentinelListResources}
	assert.Equal(t, "resources/list", list.SpanName())

	tool := &OperationRecord{Kind: KindToolCall, Name: "echo"}
	assert.Equal(t, "tools/call echo", tool.SpanName())
}

func TestCounterName(t *testing.T) {
	rec := &OperationRecord{Kind: KindToolCall, Name: "my tool"}
	assert.Equal(t, "mcp.server.tools.call.my_tool", rec.CounterName())
}

func TestBuildAttributesBase(t *testing.T) {
	rec := &OperationRecord{
		Kind:      KindToolCall,
		Name:      "echo",
		RequestID: "req-1",
	}
	attrs := attrMap(BuildAttributes(rec))

	assert.Equal(t, "tools/call", attrs["mcp.method.name"])
	assert.Equal(t, "req-1", attrs["mcp.request.id"])
	assert.Equal(t, "mcp", attrs["gen_ai.system"])
	assert.Equal(t, "echo", attrs["mcp.tool.name"])

	_, hasClient := attrs["client.address"]
	assert.False(t, hasClient, "client.address must not be fabricated")
	_, hasError := attrs["error.type"]
	assert.False(t, hasError)
}

func TestBuildAttributesKindSpecificName(t *testing.T) {
	read := attrMap(BuildAttributes(&OperationRecord{Kind: KindResourceRead, Name: "file:///a", RequestID: "r"}))
	assert.Equal(t, "file:///a", read["mcp.resource.uri"])
	_, hasTool := read["mcp.tool.name"]
	assert.False(t, hasTool)

	prompt := attrMap(BuildAttributes(&OperationRecord{Kind: KindPromptGet, Name: "greeting", RequestID: "r"}))
	assert.Equal(t, "greeting", prompt["mcp.prompt.name"])
}

func TestBuildAttributesArgumentsAndClient(t *testing.T) {
	rec := &OperationRecord{
		Kind:          KindToolCall,
		Name:          "echo",
		RequestID:     "r",
		ClientAddress: "10.0.0.5",
		Arguments: map[string]any{
			"text":  "hello",
			"count": 3,
			"loud":  true,
		},
	}
	attrs := attrMap(BuildAttributes(rec))

	assert.Equal(t, "10.0.0.5", attrs["client.address"])
	assert.Equal(t, "hello", attrs["mcp.request.argument.text"])
	assert.Equal(t, "3", attrs["mcp.request.argument.count"])
	assert.Equal(t, "true", attrs["mcp.request.argument.loud"])
}

func TestBuildAttributesErrorType(t *testing.T) {
	rec := &OperationRecord{
		Kind:      KindToolCall,
		Name:      "boom",
		RequestID: "r",
		Err:       errors.New("secret payload must not leak"),
	}
	attrs := attrMap(BuildAttributes(rec))

	require.Contains(t, attrs, "error.type")
	assert.Equal(t, "*errors.errorString", attrs["error.type"])
	for _, v := range attrs {
		assert.NotContains(t, v, "secret payload")
	}
}

func TestBuildAttributesDeterministic(t *testing.T) {
	rec := &OperationRecord{
		Kind:      KindPromptGet,
		Name:      "greeting",
		RequestID: "r",
		Arguments: map[string]any{"name": "Ada"},
	}
	first := attrMap(BuildAttributes(rec))
	second := attrMap(BuildAttributes(rec))
	assert.Equal(t, first, second)
}
