package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Autonomous coding agent with supervised background resources",
	Long: `foreman runs an autonomous coding agent: a conversation loop that
calls a language model, executes the tools it requests, and feeds the
results back until the task is complete.

Tool calls can start long-lived background work: shell processes, browser
sessions, and nested sub-agents. foreman tracks every one of them in
per-agent lifecycle registries and tears the whole tree down on exit.

Examples:
  foreman run "run the test suite and fix any failures"
  foreman run --model gpt-5.2 --max-iterations 20 "add a --json flag to the export command"
  foreman models --provider anthropic`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: foreman.yaml if present)")
	rootCmd.PersistentFlags().String("env-file", "", "Env file loaded before reading the environment (default: .env if present)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug-level logging")
}

// loadCLIConfig resolves the configuration for a command from its
// persistent flags.
func loadCLIConfig(cmd *cobra.Command) (Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := LoadConfig(configPath, envFile)
	if err != nil {
		return cfg, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// Execute runs the root command and exits nonzero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
