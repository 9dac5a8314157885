package notify

import (
	"github.com/smallbiznis/subtrack/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notify",
	fx.Provide(NewNotifier),
)

// NewNotifier returns the Telegram transport when a bot token is configured
// and a log-only notifier otherwise.
func NewNotifier(cfg config.Config, log *zap.Logger) Notifier {
	if cfg.Telegram.BotToken == "" {
		log.Warn("TELEGRAM_BOT_TOKEN not set, messages will only be logged")
		return NewLogNotifier(log)
	}
	return NewTelegram(TelegramConfig{
		Token:   cfg.Telegram.BotToken,
		APIURL:  cfg.Telegram.APIURL,
		Timeout: cfg.Telegram.Timeout,
	}, nil, log)
}
