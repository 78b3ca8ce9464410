package cmd

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/pipeline"
	"github.com/ethpandaops/medallion/pkg/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the configuration file shared by every command
type Config struct {
	// Logging level, overridden by --log-level
	Logging string `yaml:"logging" default:"info"`

	Engine   engine.Config   `yaml:",inline"`
	Pipeline pipeline.Config `yaml:",inline"`
	Server   server.Config   `yaml:",inline"`
}

// Validate validates the parts of the configuration every command uses.
// Serve mode validates its own section when the server is built.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return fmt.Errorf("invalid logging level: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return err
	}

	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	return nil
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = "./config.yaml"
	}

	config := &Config{}

	if err := defaults.Set(config); err != nil {
		return nil, err
	}

	// Try to read the file, but allow it to not exist
	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}

		return nil, err
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return config, nil
}

// loadCommandConfig loads the config file and applies the logging level
// unless --log-level was given explicitly
func loadCommandConfig(cmd *cobra.Command) (*Config, error) {
	config, err := LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	if store, _ := cmd.Flags().GetString("store"); store != "" {
		config.Engine.Store.Type = store
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if !cmd.Flags().Changed("log-level") {
		if level, err := logrus.ParseLevel(config.Logging); err == nil {
			logger.SetLevel(level)
		}
	}

	return config, nil
}
