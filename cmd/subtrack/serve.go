package main

import (
	"github.com/smallbiznis/subtrack/internal/reminder"
	"github.com/smallbiznis/subtrack/internal/scheduler"
	"github.com/smallbiznis/subtrack/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operator API, reminder timers and the daily sweep",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			coreModules(),
			fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
				return &fxevent.ZapLogger{Logger: log.Named("fx")}
			}),
			server.Module,
			fx.Invoke(reminder.RegisterLifecycle),
			fx.Invoke(scheduler.RunInBackground),
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}
