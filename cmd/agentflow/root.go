package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/avi3tal/agentflow/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "agentflow",
	Short: "agentflow runs declarative workflow graphs",
	Long: `agentflow compiles declarative workflow graphs (JSON or YAML) into
executable pipelines of LLM, routing, data and aggregation steps, and runs
them locally or behind an HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text or json)")
}

// newLogger builds the logger from the persistent flags.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	return logging.New(logging.ParseLevel(level), format)
}
