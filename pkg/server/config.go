// Package server runs serve mode: the worker, the scheduler, the API and
// the metrics, health and pprof endpoints in one process
package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/medallion/pkg/api"
	"github.com/ethpandaops/medallion/pkg/scheduler"
	"github.com/ethpandaops/medallion/pkg/worker"
)

// Define static errors
var (
	ErrRedisConfigRequired = errors.New("redis configuration is required")
)

// Config holds server configuration
type Config struct {
	// MetricsAddr is the address to listen on for metrics.
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`
	// HealthCheckAddr is the address to listen on for healthcheck.
	HealthCheckAddr *string `yaml:"healthCheckAddr"`
	// PProfAddr is the address to listen on for pprof.
	PProfAddr *string `yaml:"pprofAddr"`
	// ShutdownTimeout is the timeout for shutting down the server.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`

	Worker    worker.Config    `yaml:"worker"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	API       api.Config       `yaml:"api"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Worker.Enabled {
		if err := c.Worker.Validate(); err != nil {
			return fmt.Errorf("invalid worker configuration: %w", err)
		}
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("invalid scheduler configuration: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("invalid api configuration: %w", err)
	}

	return nil
}
