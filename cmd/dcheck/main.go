package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/dcheck/cmd/dcheck/commands"
	"github.com/teranos/dcheck/config"
	"github.com/teranos/dcheck/logger"
)

var rootCmd = &cobra.Command{
	Use:   "dcheck",
	Short: "dcheck - batch table validation runner",
	Long: `dcheck - resumable batch validation of warehouse tables.

A plan names the tables to check and the validation modules to run on each.
Every table's outcome is written as a JSON artifact as soon as it completes
and recorded in an append-only ledger, so an interrupted run picks up where
it stopped with --resume.

Available commands:
  run      - Execute a validation plan
  validate - Check a plan without running it
  modules  - List the built-in validation modules
  ledger   - Inspect, follow or correct a run ledger
  config   - Show or initialise runner configuration
  version  - Show version information

Exit codes:
  0  run passed (failures absorbed within the fail-on tolerance included)
  1  run verdict failed
  2  fatal: invalid plan, I/O failure or integrity violation
  3  interrupted between tables; resume to continue

Examples:
  dcheck run --spec plan.yaml --run-id nightly
  dcheck run --spec plan.yaml --run-id nightly --resume
  dcheck run --spec https://example.com/plans/gdpr.yaml --run-id auto --dry-run
  dcheck ledger show --run-dir ./out/nightly`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs := false
		if cfg, err := config.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.Debugw("Logger initialized", "level", logger.LevelName(verbosity), "json", jsonLogs)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.ModulesCmd)
	rootCmd.AddCommand(commands.LedgerCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	// a stop request is honoured between tables; the run stays resumable
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Cleanup()

	if err != nil {
		commands.ReportError(os.Stderr, err)
	}
	os.Exit(commands.ExitCode(err))
}
