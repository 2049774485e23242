package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shinzo-labs/shinzo-go/config"
)

// HTTPSink posts session events to the telemetry backend's session API,
// one JSON document per event at <base>/sessions/add_event. The base URL is
// the exporter endpoint with any trailing /v1/traces suffix removed.
type HTTPSink struct {
	baseURL string
	auth    *config.Auth
	client  *http.Client
}

// NewHTTPSink creates a sink for the backend described by cfg.
func NewHTTPSink(cfg config.Telemetry) *HTTPSink {
	base := strings.TrimSuffix(cfg.ExporterEndpoint, "/v1/traces")
	base = strings.TrimSuffix(base, "/")

	return &HTTPSink{
		baseURL: base,
		auth:    cfg.ExporterAuth,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Send posts each event in the batch. The first transport or status error
// aborts the batch and is returned to the Tracker, which logs and drops.
func (s *HTTPSink) Send(ctx context.Context, events []Event) error {
	if s.baseURL == "" {
		return fmt.Errorf("session backend endpoint not configured")
	}

	for _, event := range events {
		if err := s.post(ctx, "/sessions/add_event", event); err != nil {
			return err
		}
	}
	return nil
}

func (s *HTTPSink) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode session event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := applyAuth(req, s.auth); err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("session backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("session backend returned status %d", resp.StatusCode)
	}
	return nil
}

// applyAuth sets the authentication header matching the configured type.
func applyAuth(req *http.Request, auth *config.Auth) error {
	if auth == nil {
		return nil
	}

	switch auth.Type {
	case config.AuthBearer:
		if auth.Token == "" {
			return fmt.Errorf("token is required for bearer auth")
		}
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case config.AuthAPIKey:
		if auth.APIKey == "" {
			return fmt.Errorf("api_key is required for apiKey auth")
		}
		req.Header.Set("X-API-Key", auth.APIKey)
	case config.AuthBasic:
		if auth.Username == "" || auth.Password == "" {
			return fmt.Errorf("username and password are required for basic auth")
		}
		credentials := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		req.Header.Set("Authorization", "Basic "+credentials)
	default:
		return fmt.Errorf("unsupported auth type %q", auth.Type)
	}
	return nil
}
