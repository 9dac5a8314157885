package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/smallbiznis/subtrack/internal/period"
	"github.com/smallbiznis/subtrack/pkg/db"
	"github.com/spf13/viper"
)

// Config holds application configuration. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	AppName     string `validate:"required"`
	AppVersion  string
	Environment string

	LogLevel  string `validate:"omitempty,oneof=debug info warn error"`
	LogFormat string `validate:"omitempty,oneof=json console"`

	HTTPAddr string `validate:"required"`
	// NodeID seeds snowflake ids; replicas need distinct values.
	NodeID int64 `validate:"gte=0,lte=1023"`

	Database db.Config `validate:"required"`

	// OperatorIDs is the static allow-list of operator identities. Sweep
	// reports are delivered to every entry.
	OperatorIDs   []string `validate:"dive,required"`
	OperatorToken string

	Timezone string         `validate:"required"`
	Location *time.Location `validate:"required"`

	SweepTime        string `validate:"required,datetime=15:04"`
	SweepLeadDays    int    `validate:"gte=0"`
	ReminderLeadDays int    `validate:"gte=0"`
	ReminderStore    string `validate:"oneof=sql redis"`
	RenewalPolicy    period.Policy
	SearchLimit      int `validate:"gte=1,lte=500"`

	Telegram TelegramConfig
	Redis    RedisConfig

	OtelEnabled       bool
	OtelEndpoint      string
	OtelProtocol      string  `validate:"omitempty,oneof=grpc http"`
	OtelSamplingRatio float64 `validate:"gte=0,lte=1"`
	// OtelMetricsEnabled pushes lifecycle counters over OTLP when OtelEnabled.
	OtelMetricsEnabled bool
}

type TelegramConfig struct {
	BotToken string
	APIURL   string `validate:"omitempty,url"`
	Timeout  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

// SweepClock returns the configured daily sweep hour and minute.
func (c Config) SweepClock() (int, int) {
	t, err := time.Parse("15:04", c.SweepTime)
	if err != nil {
		return 9, 0
	}
	return t.Hour(), t.Minute()
}

func (c Config) IsOperator(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, op := range c.OperatorIDs {
		if op == id {
			return true
		}
	}
	return false
}

var defaults = map[string]any{
	"APP_SERVICE":                 "subtrack",
	"APP_VERSION":                 "0.1.0",
	"ENVIRONMENT":                 "development",
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "json",
	"HTTP_ADDR":                   ":8080",
	"NODE_ID":                     1,
	"DATABASE_TYPE":               "sqlite",
	"DATABASE_PATH":               "subs.db",
	"DATABASE_HOST":               "localhost",
	"DATABASE_PORT":               "5432",
	"DATABASE_NAME":               "subtrack",
	"DATABASE_USER":               "subtrack",
	"DATABASE_PASSWORD":           "",
	"DATABASE_SSLMODE":            "disable",
	"DATABASE_MAX_IDLE_CONN":      2,
	"DATABASE_MAX_OPEN_CONN":      10,
	"DATABASE_CONN_MAX_LIFETIME":  300,
	"DATABASE_CONN_MAX_IDLE_TIME": 60,
	"OPERATOR_IDS":                "",
	"OPERATOR_TOKEN":              "",
	"TIMEZONE":                    "Asia/Baghdad",
	"SWEEP_TIME":                  "09:00",
	"SWEEP_LEAD_DAYS":             3,
	"REMINDER_LEAD_DAYS":          1,
	"REMINDER_STORE":              "sql",
	"RENEWAL_POLICY":              string(period.PolicyCalendarMonth),
	"SEARCH_LIMIT":                50,
	"TELEGRAM_BOT_TOKEN":          "",
	"TELEGRAM_API_URL":            "https://api.telegram.org",
	"TELEGRAM_TIMEOUT":            "10s",
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"OTEL_ENABLED":                false,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
	"OTEL_EXPORTER_OTLP_PROTOCOL": "grpc",
	"OTEL_SAMPLING_RATIO":         0.1,
	"OTEL_METRICS_ENABLED":        true,
}

// Load reads configuration from the environment, an optional .env file and
// an optional subtrack.yml. Environment variables win over the file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("subtrack")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/subtrack")
	v.AddConfigPath(".")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper builds and validates a Config from an already populated viper
// instance.
func FromViper(v *viper.Viper) (Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	policy, err := period.ParsePolicy(v.GetString("RENEWAL_POLICY"))
	if err != nil {
		return Config{}, fmt.Errorf("RENEWAL_POLICY: %w", err)
	}

	timezone := strings.TrimSpace(v.GetString("TIMEZONE"))
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Config{}, fmt.Errorf("TIMEZONE %q: %w", timezone, err)
	}

	cfg := Config{
		AppName:     v.GetString("APP_SERVICE"),
		AppVersion:  v.GetString("APP_VERSION"),
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		LogFormat:   strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT"))),
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		NodeID:      v.GetInt64("NODE_ID"),
		Database: db.Config{
			Type:            strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_TYPE"))),
			Path:            v.GetString("DATABASE_PATH"),
			Host:            v.GetString("DATABASE_HOST"),
			Port:            v.GetString("DATABASE_PORT"),
			Name:            v.GetString("DATABASE_NAME"),
			User:            v.GetString("DATABASE_USER"),
			Password:        v.GetString("DATABASE_PASSWORD"),
			SSLMode:         v.GetString("DATABASE_SSLMODE"),
			MaxIdleConn:     v.GetInt("DATABASE_MAX_IDLE_CONN"),
			MaxOpenConn:     v.GetInt("DATABASE_MAX_OPEN_CONN"),
			ConnMaxLifetime: v.GetInt("DATABASE_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetInt("DATABASE_CONN_MAX_IDLE_TIME"),
		},
		OperatorIDs:      splitList(v.GetString("OPERATOR_IDS")),
		OperatorToken:    strings.TrimSpace(v.GetString("OPERATOR_TOKEN")),
		Timezone:         timezone,
		Location:         loc,
		SweepTime:        strings.TrimSpace(v.GetString("SWEEP_TIME")),
		SweepLeadDays:    v.GetInt("SWEEP_LEAD_DAYS"),
		ReminderLeadDays: v.GetInt("REMINDER_LEAD_DAYS"),
		ReminderStore:    strings.ToLower(strings.TrimSpace(v.GetString("REMINDER_STORE"))),
		RenewalPolicy:    policy,
		SearchLimit:      v.GetInt("SEARCH_LIMIT"),
		Telegram: TelegramConfig{
			BotToken: strings.TrimSpace(v.GetString("TELEGRAM_BOT_TOKEN")),
			APIURL:   strings.TrimRight(strings.TrimSpace(v.GetString("TELEGRAM_API_URL")), "/"),
			Timeout:  v.GetDuration("TELEGRAM_TIMEOUT"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(v.GetString("REDIS_ADDR")),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		OtelEnabled:        v.GetBool("OTEL_ENABLED"),
		OtelEndpoint:       strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelProtocol:       strings.ToLower(strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL"))),
		OtelSamplingRatio:  v.GetFloat64("OTEL_SAMPLING_RATIO"),
		OtelMetricsEnabled: v.GetBool("OTEL_METRICS_ENABLED"),
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.ReminderStore == "redis" && !cfg.Redis.Enabled() {
		return errors.New("invalid config: REMINDER_STORE=redis requires REDIS_ADDR")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
