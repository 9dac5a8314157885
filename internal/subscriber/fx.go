package subscriber

import (
	"github.com/smallbiznis/subtrack/internal/subscriber/repository"
	"github.com/smallbiznis/subtrack/internal/subscriber/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscriber.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
