package config

import "time"

// ScheduleConfig configures the task scheduler.
type ScheduleConfig struct {
	Enabled bool `yaml:"enabled"`

	// TickInterval is how often due tasks are checked.
	TickInterval time.Duration `yaml:"tick_interval"`
}

func (c *ScheduleConfig) applyDefaults() {
	if c.TickInterval == 0 {
		c.TickInterval = 15 * time.Second
	}
}
