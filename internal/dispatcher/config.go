package dispatcher

import (
	"time"

	"github.com/harvestbox/commerce/internal/config"
)

// Config controls dispatch run cadence and batching.
type Config struct {
	RunInterval          time.Duration
	BatchSize            int
	Workers              int
	RunLockTTL           time.Duration
	OverdueToleranceDays int
}

func DefaultConfig() Config {
	return Config{
		RunInterval:          24 * time.Hour,
		BatchSize:            50,
		Workers:              4,
		RunLockTTL:           10 * time.Minute,
		OverdueToleranceDays: 0,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.RunLockTTL <= 0 {
		c.RunLockTTL = defaults.RunLockTTL
	}
	if c.OverdueToleranceDays < 0 {
		c.OverdueToleranceDays = defaults.OverdueToleranceDays
	}
	return c
}

// ProvideConfig maps application settings onto the dispatcher config.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:          cfg.DispatchInterval,
		BatchSize:            cfg.DispatchBatchSize,
		Workers:              cfg.DispatchWorkers,
		RunLockTTL:           cfg.DispatchRunLockTTL,
		OverdueToleranceDays: cfg.OverdueToleranceDays,
	}.withDefaults()
}
