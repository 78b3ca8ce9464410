// Package engine provides the handle every stage runs against: the table
// store, the catalog, the run ledger and the table lock.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/medallion/pkg/clickhouse"
	"github.com/ethpandaops/medallion/pkg/redis"
)

var (
	// ErrUnknownStoreType is returned when store.type is not local, clickhouse or memory
	ErrUnknownStoreType = errors.New("unknown store type")
	// ErrInvalidLockTTL is returned when the lock TTL is not positive
	ErrInvalidLockTTL = errors.New("lock ttl must be positive")
)

// Store types
const (
	StoreLocal      = "local"
	StoreClickHouse = "clickhouse"
	StoreMemory     = "memory"
)

// Config represents the engine configuration
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Redis  redis.Config `yaml:"redis"`
	Lock   LockConfig   `yaml:"lock"`
	Ledger LedgerConfig `yaml:"ledger"`
}

// StoreConfig selects and configures the table store
type StoreConfig struct {
	Type       string            `yaml:"type" default:"local"`
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
}

// LockConfig configures the table lock
type LockConfig struct {
	TTL time.Duration `yaml:"ttl" default:"30s"`
}

// LedgerConfig configures the run ledger
type LedgerConfig struct {
	// Retention expires runs older than this in the Redis ledger; 0 keeps them forever
	Retention time.Duration `yaml:"retention" default:"720h"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Type {
	case StoreLocal, StoreMemory:
	case StoreClickHouse:
		if err := c.Store.ClickHouse.Validate(); err != nil {
			return fmt.Errorf("invalid clickhouse configuration: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreType, c.Store.Type)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid redis configuration: %w", err)
	}

	if c.Lock.TTL <= 0 {
		return ErrInvalidLockTTL
	}

	return nil
}
