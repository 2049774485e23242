package session

import "time"

// EventType classifies a session event by the MCP operation that produced it.
type EventType string

const (
	EventToolCall     EventType = "tool_call"
	EventToolResponse EventType = "tool_response"
	EventResourceList EventType = "resource_list"
	EventResourceRead EventType = "resource_read"
	EventPromptList   EventType = "prompt_list"
	EventPromptGet    EventType = "prompt_get"
)

// EventError carries a structured handler error. Type is the error's
// discriminator, never the full payload.
type EventError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Event is one operation observed during a session. Events are immutable
// once handed to the Tracker; the Tracker attaches SessionUUID before
// transmission.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   EventType `json:"event_type"`
	SessionUUID string    `json:"session_uuid,omitempty"`

	// ToolName identifies tool events. Prompt names are mapped onto this
	// field for backward schema compatibility.
	ToolName string `json:"tool_name,omitempty"`

	// ResourceURI is populated only for resource events.
	ResourceURI string `json:"resource_uri,omitempty"`

	// InputData and OutputData are present only when argument collection
	// is enabled, and are sanitized before the event reaches the Tracker.
	InputData  map[string]any `json:"input_data,omitempty"`
	OutputData any            `json:"output_data,omitempty"`

	Error      *EventError    `json:"error_data,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
