package reminder

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/subtrack/internal/config"
	"github.com/smallbiznis/subtrack/internal/reminder/domain"
	"github.com/smallbiznis/subtrack/internal/reminder/store"
	subdomain "github.com/smallbiznis/subtrack/internal/subscriber/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("reminder",
	fx.Provide(NewStore),
	fx.Provide(New),
	fx.Provide(func(s *Scheduler) subdomain.Reminders { return s }),
)

type StoreParams struct {
	fx.In

	DB     *gorm.DB
	Config config.Config
	Redis  *redis.Client `optional:"true"`
}

// NewStore selects the job store configured by REMINDER_STORE.
func NewStore(p StoreParams) domain.Store {
	if p.Config.ReminderStore == "redis" && p.Redis != nil {
		return store.NewRedisStore(p.Redis, "")
	}
	return store.NewSQLStore(p.DB)
}

// RegisterLifecycle restores persisted jobs on start and disarms every
// timer on stop. Only long-running processes invoke it.
func RegisterLifecycle(lc fx.Lifecycle, sched *Scheduler, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sched.Restore(ctx); err != nil {
				log.Warn("reminder restore incomplete", zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			sched.Stop()
			return nil
		},
	})
}
