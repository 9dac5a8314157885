package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "subtrack",
	Short: "subtrack - subscription lifecycle engine",
	Long: `subtrack keeps the customer ledger of a small subscription business:
registrations, renewals with payment records, expiry reminders and the
daily operator report.

Configuration is read from the environment, an optional .env file and an
optional subtrack.yml.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, importCmd, exportCmd, sweepCmd)
}
