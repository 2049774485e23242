package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the shinzo demo binary
var rootCmd = &cobra.Command{
	Use:   "shinzo",
	Short: "Automatic observability for MCP servers",
	Long: `shinzo attaches OpenTelemetry tracing, metrics, and session-event
logging to MCP (Model Context Protocol) server handlers without requiring
handler authors to change code.

This binary runs a small instrumented demo server; the SDK itself is consumed
as a library.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "shinzo version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
