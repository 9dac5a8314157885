package scheduler

import (
	"time"

	"github.com/smallbiznis/subtrack/internal/config"
)

// Config controls when the daily sweep runs and what it reports.
type Config struct {
	Hour       int
	Minute     int
	LeadDays   int
	Recipients []string
	JobTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Hour:       9,
		LeadDays:   3,
		JobTimeout: time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	hour, minute := cfg.SweepClock()
	return Config{
		Hour:       hour,
		Minute:     minute,
		LeadDays:   cfg.SweepLeadDays,
		Recipients: cfg.OperatorIDs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Hour < 0 || c.Hour > 23 {
		c.Hour = defaults.Hour
	}
	if c.Minute < 0 || c.Minute > 59 {
		c.Minute = defaults.Minute
	}
	if c.LeadDays < 0 {
		c.LeadDays = defaults.LeadDays
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
