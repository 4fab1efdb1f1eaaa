package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvQueueWorkers      = "ATTEST_QUEUE_WORKERS"
	EnvQueuePollInterval = "ATTEST_QUEUE_POLL_INTERVAL"
)

// QueueConfig holds background job queue parameters.
type QueueConfig struct {
	Workers      int    `toml:"workers"`
	PollInterval string `toml:"poll_interval"`
}

// PollIntervalDuration returns PollInterval as a time.Duration.
func (c *QueueConfig) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *QueueConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *QueueConfig) Merge(overlay *QueueConfig) {
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.PollInterval != "" {
		c.PollInterval = overlay.PollInterval
	}
}

func (c *QueueConfig) loadDefaults() {
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.PollInterval == "" {
		c.PollInterval = "2s"
	}
}

func (c *QueueConfig) loadEnv() {
	if v := os.Getenv(EnvQueueWorkers); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			c.Workers = workers
		}
	}
	if v := os.Getenv(EnvQueuePollInterval); v != "" {
		c.PollInterval = v
	}
}

func (c *QueueConfig) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("invalid workers: %d", c.Workers)
	}
	if _, err := time.ParseDuration(c.PollInterval); err != nil {
		return fmt.Errorf("invalid poll_interval: %w", err)
	}
	return nil
}
