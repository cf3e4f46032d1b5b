// Package main provides the CLI entry point for routergen, the synthetic
// training-data pipeline for a tool-routing model.
//
// # Basic Usage
//
// Generate examples until the configured target is reached:
//
//	routergen generate --config routergen.yaml
//
// Audit the newest raw file and the processed train split:
//
//	routergen audit
//
// Build the train/test splits and publish them:
//
//	routergen build --preview 3
//	routergen publish processed
//
// # Environment Variables
//
//   - ROUTERGEN_CONFIG: path to the configuration file (default: routergen.yaml when present)
//   - GROQ_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY, OPENROUTER_API_KEY:
//     provider keys used when the config leaves api_key empty
//   - ROUTERGEN_*: threshold and generation overrides, see internal/config
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Persistent flags shared by every command.
var (
	configPath string
	envFile    string
	logLevel   string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "routergen",
		Short: "routergen - synthetic training data for a tool-routing model",
		Long: `routergen asks LLM providers for routing examples, validates them in three
layers, and builds deduplicated Llama-3 train/test splits.

Tools: codebase_search, file_manager, sandbox_exec, ask_human, or a direct answer.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML or JSON5 configuration file (or set ROUTERGEN_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config; existing variables win")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(
		buildGenerateCmd(),
		buildAuditCmd(),
		buildBuildCmd(),
		buildPublishCmd(),
		buildPromptCmd(),
		buildRunsCmd(),
		buildConfigCmd(),
	)
	return rootCmd
}
