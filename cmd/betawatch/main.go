// Package main is the entry point for the betawatch CLI.
//
// Betawatch can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	betawatch serve -c config.yaml     # Start watching keys
//	betawatch check abc12345           # One-shot availability check
//	betawatch validate -c config.yaml  # Validate configuration
//	betawatch version                  # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "betawatch",
	Short: "A resilient TestFlight beta availability watcher",
	Long: `Betawatch watches TestFlight beta keys and alerts you the moment a
beta starts accepting testers.

It polls the public join page for each key at a configurable interval,
behind a shared rate limiter and circuit breaker so the upstream is never
hammered, and exposes the latest statuses over a small JSON API.

Quick start:
  1. Create a config file (betawatch.yaml)
  2. Run: betawatch serve -c betawatch.yaml

Example config:
  keys:
    - abc12345
  poll_interval: 1m
  notify:
    telegram:
      token: ${TELEGRAM_TOKEN}
      chat_id: ${TELEGRAM_CHAT_ID}`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this betawatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("betawatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
