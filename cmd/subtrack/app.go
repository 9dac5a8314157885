package main

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subtrack/internal/clock"
	"github.com/smallbiznis/subtrack/internal/config"
	"github.com/smallbiznis/subtrack/internal/customcmd"
	"github.com/smallbiznis/subtrack/internal/importer"
	"github.com/smallbiznis/subtrack/internal/lock"
	"github.com/smallbiznis/subtrack/internal/migration"
	"github.com/smallbiznis/subtrack/internal/observability"
	"github.com/smallbiznis/subtrack/internal/providers"
	"github.com/smallbiznis/subtrack/internal/reminder"
	"github.com/smallbiznis/subtrack/internal/scheduler"
	"github.com/smallbiznis/subtrack/internal/subscriber"
	"github.com/smallbiznis/subtrack/pkg/db"
	"go.uber.org/fx"
)

// coreModules wires everything the commands share. Only serve adds the
// HTTP server and the background loops.
func coreModules() fx.Option {
	return fx.Options(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		lock.Module,
		providers.Module,

		// Functional Domains
		subscriber.Module,
		reminder.Module,
		importer.Module,
		customcmd.Module,
		scheduler.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.NodeID, err)
	}
	return node, nil
}

// runOneShot starts the shared modules, populates targets, runs fn and
// stops the app again.
func runOneShot(ctx context.Context, fn func(ctx context.Context) error, targets ...any) error {
	app := fx.New(
		coreModules(),
		fx.NopLogger,
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
