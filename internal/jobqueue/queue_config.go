/*
Package jobqueue configuration - tunable parameters for the River job queue.

## Quick reference:

- Increase MaxWorkers for higher fan-out throughput (busy workspaces with
  large channels).
- Lower MaxWorkers to reduce database connection usage.
- Nudge jobs are cheap and idempotent, so a small retry budget is enough:
  a lost nudge is recovered by the recipient's next sidebar poll anyway.

Failed jobs retain their error information in the River jobs table.
*/
package jobqueue

import (
	"os"
	"strings"

	"github.com/riverqueue/river"
)

// QueueConfig holds all configurable parameters for the job queue.
type QueueConfig struct {
	// MaxWorkers is the number of concurrent workers processing jobs.
	MaxWorkers int

	// MaxRetries is the maximum retry attempts per job. Nudges go stale
	// fast, so this stays low.
	MaxRetries int
}

// DefaultQueueConfig returns the default configuration.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxWorkers: 10,
		MaxRetries: 3,
	}
}

// GetQueueConfig returns the configuration for the current environment.
func GetQueueConfig() *QueueConfig {
	env := strings.ToLower(os.Getenv("HALLWAY_ENV"))

	config := DefaultQueueConfig()
	switch env {
	case "production":
		config.MaxWorkers = 20
	case "development", "dev":
		config.MaxWorkers = 3
	}
	return config
}

// RiverQueueConfig translates our settings into River's queue configuration.
func (c *QueueConfig) RiverQueueConfig() map[string]river.QueueConfig {
	return map[string]river.QueueConfig{
		river.QueueDefault: {MaxWorkers: c.MaxWorkers},
	}
}
