package observability

import (
	"github.com/smallbiznis/subtrack/internal/config"
)

// Config is the observability slice of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
	OtelMetricsEnabled   bool
}

func LoadConfig(cfg config.Config) Config {
	return Config{
		ServiceName:          cfg.AppName,
		Environment:          cfg.Environment,
		Version:              cfg.AppVersion,
		LogLevel:             cfg.LogLevel,
		LogFormat:            cfg.LogFormat,
		OtelEnabled:          cfg.OtelEnabled,
		OtelExporterEndpoint: cfg.OtelEndpoint,
		OtelExporterProtocol: cfg.OtelProtocol,
		OtelSamplingRatio:    cfg.OtelSamplingRatio,
		OtelMetricsEnabled:   cfg.OtelMetricsEnabled,
	}
}

// Debug reports whether verbose diagnostics should be enabled.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
