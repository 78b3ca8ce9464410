// Package clickhouse provides a ClickHouse HTTP interface client
package clickhouse

import (
	"errors"
	"os"
	"time"
)

// Static errors for configuration validation
var (
	ErrURLRequired = errors.New("URL is required")
)

// DatabasePrefixEnv names the environment variable prepended to every database
const DatabasePrefixEnv = "MEDALLION_DATABASE_PREFIX"

// Config contains ClickHouse connection settings
type Config struct {
	URL           string        `yaml:"url"`
	Database      string        `yaml:"database"`
	QueryTimeout  time.Duration `yaml:"queryTimeout"`
	InsertTimeout time.Duration `yaml:"insertTimeout"`
	Debug         bool          `yaml:"debug"`
	KeepAlive     time.Duration `yaml:"keepAlive"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	return nil
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}

	if c.InsertTimeout == 0 {
		c.InsertTimeout = 5 * time.Minute
	}

	if c.KeepAlive == 0 {
		c.KeepAlive = 30 * time.Second
	}

	if c.Database == "" {
		c.Database = "default"
	}
}

// MapDatabase maps a logical database name to a physical database name.
// If MEDALLION_DATABASE_PREFIX is set it is prepended to the name, otherwise
// the name is returned unchanged.
func (c *Config) MapDatabase(logicalName string) string {
	if prefix := os.Getenv(DatabasePrefixEnv); prefix != "" {
		return prefix + logicalName
	}

	return logicalName
}
