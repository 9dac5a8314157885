package customcmd

import (
	"github.com/smallbiznis/subtrack/internal/customcmd/repository"
	"github.com/smallbiznis/subtrack/internal/customcmd/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customcmd.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
