package pipeline

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/medallion/pkg/delimited"
	"github.com/ethpandaops/medallion/pkg/gold"
	"github.com/ethpandaops/medallion/pkg/rendering"
)

// Define static errors
var (
	ErrInvalidTopN       = errors.New("gold topN must be positive")
	ErrInvalidMinRatings = errors.New("gold minRatings must not be negative")
)

// Config is the pipeline section of the configuration
type Config struct {
	Paths  PathsConfig  `yaml:"paths"`
	Ingest IngestConfig `yaml:"ingest"`
	Gold   GoldConfig   `yaml:"gold"`
}

// PathsConfig holds the base location of every layer and the layouts used to
// place a table under its base
type PathsConfig struct {
	Raw    string `yaml:"raw"`
	Bronze string `yaml:"bronze"`
	Silver string `yaml:"silver"`
	Gold   string `yaml:"gold"`
	// Layout renders bronze, silver and gold locations
	Layout string `yaml:"layout"`
	// RawLayout renders the source path of a table kind
	RawLayout string `yaml:"rawLayout"`
}

// IngestConfig holds ingestion defaults
type IngestConfig struct {
	Mode              string `yaml:"mode" default:"full"`
	delimited.Options `yaml:",inline"`
}

// GoldConfig holds the decade ranking settings
type GoldConfig struct {
	MinRatings int64 `yaml:"minRatings" default:"50"`
	TopN       int   `yaml:"topN" default:"10"`
}

// Validate checks the configuration and fills empty layouts
func (c *Config) Validate() error {
	if c.Paths.Layout == "" {
		c.Paths.Layout = rendering.PathLayout
	}

	if c.Paths.RawLayout == "" {
		c.Paths.RawLayout = rendering.PathLayout
	}

	if c.Ingest.Mode == "" {
		c.Ingest.Mode = string(ModeFull)
	}

	if _, err := ParseRunMode(c.Ingest.Mode); err != nil {
		return err
	}

	if c.Ingest.Delimiter == "" {
		c.Ingest.Delimiter = delimited.Comma
	}

	if err := c.Ingest.Options.Validate(); err != nil {
		return fmt.Errorf("invalid ingest configuration: %w", err)
	}

	if c.Gold.TopN == 0 {
		c.Gold.TopN = gold.DefaultTopN
	}

	if c.Gold.TopN < 0 {
		return ErrInvalidTopN
	}

	if c.Gold.MinRatings < 0 {
		return ErrInvalidMinRatings
	}

	return nil
}

// Params returns the run parameters implied by the configuration
func (c *Config) Params() Params {
	return Params{
		RawBasePath:    c.Paths.Raw,
		BronzeBasePath: c.Paths.Bronze,
		SilverBasePath: c.Paths.Silver,
		GoldBasePath:   c.Paths.Gold,
		RunMode:        c.Ingest.Mode,
		Delimiter:      c.Ingest.Delimiter,
	}
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			Layout:    rendering.PathLayout,
			RawLayout: rendering.PathLayout,
		},
		Ingest: IngestConfig{
			Mode: string(ModeFull),
			Options: delimited.Options{
				Delimiter: delimited.Comma,
				Encoding:  delimited.EncodingUTF8,
				Malformed: delimited.PolicyFail,
			},
		},
		Gold: GoldConfig{
			MinRatings: gold.DefaultMinRatings,
			TopN:       gold.DefaultTopN,
		},
	}
}
