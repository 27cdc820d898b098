package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/betawatch/betawatch"
)

// checkTimeout bounds a one-shot check, covering retries and backoff.
const checkTimeout = 60 * time.Second

// checkCmd runs a single availability check for one or more keys.
var checkCmd = &cobra.Command{
	Use:   "check KEY [KEY...]",
	Short: "Run a one-shot availability check",
	Long: `Check the availability of one or more TestFlight beta keys and print
the result.

No watcher is started; this performs a single check per key with the
default retry and timeout settings.

Exit codes:
  0 - All checks completed (statuses printed, including full/closed)
  1 - A key was invalid or a check could not complete

Example:
  betawatch check abc12345
  betawatch check abc12345 def67890`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	// quiet logger; the printed statuses are the output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w, err := betawatch.New(
		betawatch.WithKeys(args...),
		betawatch.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), checkTimeout)
	defer cancel()

	for _, key := range args {
		record, err := w.Check(ctx, key)
		if err != nil {
			return fmt.Errorf("check %s: %w", key, err)
		}
		printRecord(record)
	}
	return nil
}

func printRecord(r betawatch.StatusRecord) {
	name := r.DisplayName
	if name == "" {
		name = "(unknown app)"
	}

	fmt.Printf("%s  %s  %s", r.Key, r.Status, name)
	if r.ErrorDetail != "" {
		fmt.Printf("  [%s]", r.ErrorDetail)
	}
	fmt.Println()
}
