package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinzo-labs/shinzo-go/config"
)

type capturedRequest struct {
	path   string
	header http.Header
	body   map[string]any
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()

	var mu sync.Mutex
	var captured []capturedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		captured = append(captured, capturedRequest{path: r.URL.Path, header: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)

	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), captured...)
	}
}

func TestSendPostsOneRequestPerEvent(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)

	sink := NewHTTPSink(config.Telemetry{ExporterEndpoint: srv.URL})
	events := []Event{
		{Timestamp: time.Now(), EventType: EventToolResponse, ToolName: "echo", SessionUUID: "s1"},
		{Timestamp: time.Now(), EventType: EventResourceRead, ResourceURI: "file:///a", SessionUUID: "s1"},
	}
	require.NoError(t, sink.Send(context.Background(), events))

	got := captured()
	require.Len(t, got, 2)
	assert.Equal(t, "/sessions/add_event", got[0].path)
	assert.Equal(t, "application/json", got[0].header.Get("Content-Type"))
	assert.Equal(t, "tool_response", got[0].body["event_type"])
	assert.Equal(t, "echo", got[0].body["tool_name"])
	assert.Equal(t, "s1", got[0].body["session_uuid"])
	assert.Equal(t, "file:///a", got[1].body["resource_uri"])
}

func TestSinkStripsTraceSuffix(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)

	sink := NewHTTPSink(config.Telemetry{ExporterEndpoint: srv.URL + "/v1/traces"})
	require.NoError(t, sink.Send(context.Background(), []Event{{EventType: EventToolResponse}}))

	got := captured()
	require.Len(t, got, 1)
	assert.Equal(t, "/sessions/add_event", got[0].path)
}

func TestSinkAuthHeaders(t *testing.T) {
	tests := []struct {
		name      string
		auth      *config.Auth
		header    string
		wantValue string
	}{
		{
			name:      "bearer",
			auth:      &config.Auth{Type: config.AuthBearer, Token: "tok"},
			header:    "Authorization",
			wantValue: "Bearer tok",
		},
		{
			name:      "api key",
			auth:      &config.Auth{Type: config.AuthAPIKey, APIKey: "key-1"},
			header:    "X-API-Key",
			wantValue: "key-1",
		},
		{
			name:      "basic",
			auth:      &config.Auth{Type: config.AuthBasic, Username: "u", Password: "p"},
			header:    "Authorization",
			wantValue: "Basic dTpw",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, captured := newCaptureServer(t, http.StatusOK)
			sink := NewHTTPSink(config.Telemetry{ExporterEndpoint: srv.URL, ExporterAuth: tt.auth})

			require.NoError(t, sink.Send(context.Background(), []Event{{EventType: EventToolResponse}}))

			got := captured()
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantValue, got[0].header.Get(tt.header))
		})
	}
}

func TestSendStatusError(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusInternalServerError)

	sink := NewHTTPSink(config.Telemetry{ExporterEndpoint: srv.URL})
	err := sink.Send(context.Background(), []Event{{EventType: EventToolResponse}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestEventErrorFieldName(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)

	sink := NewHTTPSink(config.Telemetry{ExporterEndpoint: srv.URL})
	event := Event{
		EventType: EventToolCall,
		ToolName:  "boom",
		Error:     &EventError{Type: "*errors.errorString", Message: "bad input"},
	}
	require.NoError(t, sink.Send(context.Background(), []Event{event}))

	got := captured()
	require.Len(t, got, 1)
	errData, ok := got[0].body["error_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "bad input", errData["message"])
}
