package main

import (
	"context"

	obscontext "github.com/smallbiznis/subtrack/internal/observability/context"
	"github.com/smallbiznis/subtrack/internal/scheduler"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Send the daily expiry report to every operator now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var sched *scheduler.Scheduler
		ctx := obscontext.WithActor(cmd.Context(), "cli", "sweep")
		return runOneShot(ctx, func(ctx context.Context) error {
			return sched.RunOnce(ctx)
		}, &sched)
	},
}
