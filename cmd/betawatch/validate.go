package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/betawatch/betawatch"
	"github.com/betawatch/betawatch/config"
)

// validateCmd validates a config file without starting the watcher.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a betawatch configuration file without starting the watcher.

This command parses the YAML, expands environment variables, and validates
all fields, including key formats. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  betawatch validate -c config.yaml
  betawatch validate --config /etc/betawatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// the watcher's own validation covers key formats and option ranges
	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := betawatch.New(opts...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Keys:          %d\n", len(cfg.Keys))
	if cfg.PollInterval != 0 {
		fmt.Printf("  Poll interval: %s\n", cfg.PollInterval.Duration())
	}
	if cfg.Port != 0 {
		fmt.Printf("  Port:          %d\n", cfg.Port)
	}
	if cfg.Notify.Telegram != nil {
		fmt.Printf("  Notify:        telegram\n")
	}

	return nil
}
