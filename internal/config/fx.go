package config

import (
	"time"

	"github.com/smallbiznis/subtrack/pkg/db"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(
		Load,
		func(cfg Config) db.Config { return cfg.Database },
		func(cfg Config) *time.Location { return cfg.Location },
	),
)
