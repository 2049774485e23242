package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/shinzo-labs/shinzo-go/config"
	"github.com/shinzo-labs/shinzo-go/instrument"
	"github.com/shinzo-labs/shinzo-go/mcpgo"
)

func newServeCmd() *cobra.Command {
	var (
		configFile     string
		serverName     string
		exporterType   string
		endpoint       string
		metricsAddr    string
		enableSession  bool
		sessionUUID    string
		enableSanitize bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start an instrumented demo MCP server on stdio",
		Long: `Start a demo MCP server over stdio with automatic instrumentation
attached: every tool call, resource read, and prompt retrieval produces a
span, metrics, and (optionally) a session event.

By default telemetry goes to the console exporter so the demo needs no
backend. Point --endpoint at an OTLP-compatible collector to export for
real, or provide a YAML config file with the full configuration surface.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			exporterSet := cmd.Flags().Changed("exporter")
			cfg, err := buildConfig(configFile, serverName, exporterType, exporterSet, endpoint, enableSanitize)
			if err != nil {
				return err
			}
			return runServe(cfg, metricsAddr, enableSession, sessionUUID)
		},
	}

	cmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML telemetry config file")
	cmd.Flags().StringVar(&serverName, "server-name", "shinzo-demo", "Instrumented server name")
	cmd.Flags().StringVar(&exporterType, "exporter", config.ExporterConsole, "Trace exporter: otlp-http or console")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "OTLP-compatible backend base URL")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address (prometheus metrics exporter only)")
	cmd.Flags().BoolVar(&enableSession, "session", false, "Enable session tracking")
	cmd.Flags().StringVar(&sessionUUID, "session-uuid", "", "Session UUID (generated when empty)")
	cmd.Flags().BoolVar(&enableSanitize, "sanitize", false, "Enable PII sanitization of collected arguments")

	return cmd
}

// buildConfig assembles the telemetry config from the config file and flags.
// Explicitly passed flags override file values; the --exporter default only
// applies when no config file carries its own exporter choice.
func buildConfig(configFile, serverName, exporterType string, exporterSet bool, endpoint string, enableSanitize bool) (config.Telemetry, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadFile(configFile)
		if err != nil {
			return config.Telemetry{}, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg = loaded
	}

	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = version
	}
	if exporterType != "" && (exporterSet || configFile == "") {
		cfg.ExporterType = exporterType
		cfg.MetricsExporter = ""
	}
	if endpoint != "" {
		cfg.ExporterEndpoint = endpoint
		cfg.ExporterType = config.ExporterOTLPHTTP
		cfg.MetricsExporter = ""
	}
	if enableSanitize {
		cfg.EnablePIISanitization = true
	}
	cfg.ApplyDefaults()

	return cfg, nil
}

func runServe(cfg config.Telemetry, metricsAddr string, enableSession bool, sessionUUID string) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := mcpgo.NewServer(cfg.ServerName, cfg.ServerVersion,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
	)

	handle, err := instrument.Instrument(shutdownCtx, srv, cfg)
	if err != nil {
		return fmt.Errorf("failed to instrument server: %w", err)
	}
	defer func() {
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer drainCancel()
		if err := handle.Shutdown(drainCtx); err != nil {
			slog.Warn("instrumentation shutdown failed", "error", err.Error())
		}
	}()

	if enableSession {
		s := handle.EnableSessionTracking(sessionUUID, map[string]any{
			"source": "shinzo serve",
		})
		slog.Info("session tracking enabled", "session", s.UUID)
	}

	registerDemoHandlers(srv)

	// The prometheus exporter needs an HTTP surface; stdio is taken by the
	// MCP transport, so metrics get their own listener.
	if promHandler := handle.Telemetry().PrometheusHandler(); promHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promHandler)
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				slog.Warn("metrics server stopped", "error", err.Error())
			}
		}()
		slog.Info("metrics server listening", "addr", metricsAddr)
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(srv.MCPServer); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}

// registerDemoHandlers adds a handful of handlers covering all three
// operation families so the demo exercises every instrumentation path.
func registerDemoHandlers(srv *mcpgo.Server) {
	echoTool := mcp.NewTool("echo",
		mcp.WithDescription("Echo the given text back to the caller"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to echo"),
		),
	)
	srv.AddTool(echoTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := request.GetString("text", "")
		if text == "" {
			return mcp.NewToolResultError("text is required"), nil
		}
		return mcp.NewToolResultText(text), nil
	})

	sleepTool := mcp.NewTool("sleep",
		mcp.WithDescription("Sleep for the given number of milliseconds"),
		mcp.WithNumber("duration_ms",
			mcp.Required(),
			mcp.Description("How long to sleep, in milliseconds"),
		),
	)
	srv.AddTool(sleepTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		durationMS := request.GetFloat("duration_ms", 0)
		select {
		case <-time.After(time.Duration(durationMS) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return mcp.NewToolResultText(fmt.Sprintf("slept %.0fms", durationMS)), nil
	})

	statusResource := mcp.NewResource(
		"demo://status",
		"Server Status",
		mcp.WithResourceDescription("Current demo server status"),
		mcp.WithMIMEType("application/json"),
	)
	srv.AddResource(statusResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		status, err := json.Marshal(map[string]any{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal status: %w", err)
		}
		return []mcp.ResourceContents{
			&mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(status),
			},
		}, nil
	})

	greetingPrompt := mcp.NewPrompt("greeting",
		mcp.WithPromptDescription("Generate a greeting for the given name"),
		mcp.WithArgument("name",
			mcp.ArgumentDescription("Who to greet"),
		),
	)
	srv.AddPrompt(greetingPrompt, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		name := request.Params.Arguments["name"]
		if name == "" {
			name = "there"
		}
		return &mcp.GetPromptResult{
			Description: "A friendly greeting",
			Messages: []mcp.PromptMessage{
				{
					Role:    mcp.RoleUser,
					Content: mcp.NewTextContent(fmt.Sprintf("Say hello to %s.", name)),
				},
			},
		}, nil
	})
}
