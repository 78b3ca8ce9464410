// Package worker processes queued stage and pipeline runs
package worker

import (
	"errors"
	"time"

	"github.com/ethpandaops/medallion/pkg/tasks"
)

var (
	// ErrInvalidConcurrency is returned when concurrency is not positive
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
	// ErrInvalidTaskTimeout is returned when the task timeout is negative
	ErrInvalidTaskTimeout = errors.New("task timeout must not be negative")
)

// Config contains worker-specific settings
type Config struct {
	Enabled         bool          `yaml:"enabled" default:"true"`
	Concurrency     int           `yaml:"concurrency" default:"2"`
	Queue           string        `yaml:"queue"`
	TaskTimeout     time.Duration `yaml:"taskTimeout" default:"30m"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"30s"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	if c.TaskTimeout < 0 {
		return ErrInvalidTaskTimeout
	}

	if c.Queue == "" {
		c.Queue = tasks.DefaultQueue
	}

	return nil
}
