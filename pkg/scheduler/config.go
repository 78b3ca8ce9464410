// Package scheduler enqueues pipeline runs on a cron schedule. Every
// instance takes part in leader election; only the leader enqueues.
package scheduler

import (
	"errors"
	"time"
)

var (
	// ErrInvalidSchedule is returned when the schedule is not a valid cron expression
	ErrInvalidSchedule = errors.New("invalid schedule")
)

// Config defines scheduler configuration
type Config struct {
	Enabled  bool   `yaml:"enabled" default:"true"`
	Schedule string `yaml:"schedule" default:"@daily"`
	// Targets limits scheduled runs to these stages and their dependencies
	Targets         []string      `yaml:"targets,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	_, err := parseSchedule(c.Schedule)

	return err
}
