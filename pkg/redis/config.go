// Package redis provides Redis client configuration
package redis

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key and queue the pipeline creates
const DefaultPrefix = "medallion"

// Config holds Redis client configuration. An empty URL disables Redis and
// the pipeline falls back to in-process catalog, ledger and locks.
type Config struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix" default:"medallion"`
}

// Enabled reports whether a Redis URL is configured
func (c *Config) Enabled() bool {
	return c.URL != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}

	if !c.Enabled() {
		return nil
	}

	if _, err := redis.ParseURL(c.URL); err != nil {
		return fmt.Errorf("invalid redis url: %w", err)
	}

	return nil
}

// Options parses the URL into client options
func (c *Config) Options() (*redis.Options, error) {
	opt, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return opt, nil
}

// PrefixKey adds the configured prefix to a Redis key
func (c *Config) PrefixKey(key string) string {
	return Key(c.Prefix, key)
}

// PrefixQueue adds the configured prefix to an Asynq queue name
func (c *Config) PrefixQueue(queue string) string {
	return Key(c.Prefix, queue)
}

// Key joins a prefix and a key with ":"; an empty prefix leaves key unchanged
func Key(prefix, key string) string {
	if prefix == "" {
		return key
	}

	return fmt.Sprintf("%s:%s", prefix, key)
}
