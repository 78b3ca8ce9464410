// Package pipeline wires the medallion stages into a dependency graph and
// runs them with table locks, a run ledger and metrics.
package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/medallion/pkg/delimited"
	"github.com/ethpandaops/medallion/pkg/store"
	"github.com/ethpandaops/medallion/pkg/tablekind"
)

// Define static errors
var (
	ErrMissingParam      = errors.New("missing required parameter")
	ErrInvalidMode       = errors.New("invalid run mode")
	ErrUnknownStage      = errors.New("unknown stage")
	ErrTableNameMismatch = errors.New("table_name does not match the stage")
)

// RunMode selects how ingestion treats the existing bronze table
type RunMode string

// Run modes
const (
	// ModeFull replaces the bronze table
	ModeFull RunMode = "full"
	// ModeIncremental appends to the bronze table without duplicate checks
	ModeIncremental RunMode = "incremental"
)

// ParseRunMode parses a run mode, case-insensitively
func ParseRunMode(s string) (RunMode, error) {
	switch m := RunMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFull, ModeIncremental:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q (expected full or incremental)", ErrInvalidMode, s)
	}
}

// WriteMode maps a run mode onto a store write mode
func (m RunMode) WriteMode() store.Mode {
	if m == ModeIncremental {
		return store.ModeAppend
	}

	return store.ModeOverwrite
}

// Parameter names as accepted on the command line and in task payloads
const (
	ParamRawBasePath    = "raw_base_path"
	ParamBronzeBasePath = "bronze_base_path"
	ParamSilverBasePath = "silver_base_path"
	ParamGoldBasePath   = "gold_base_path"
	ParamRunMode        = "run_mode"
	ParamTableName      = "table_name"
	ParamDelimiter      = "delimiter"
)

// Params are the run parameters of a stage
type Params struct {
	RawBasePath    string `json:"raw_base_path,omitempty"`
	BronzeBasePath string `json:"bronze_base_path,omitempty"`
	SilverBasePath string `json:"silver_base_path,omitempty"`
	GoldBasePath   string `json:"gold_base_path,omitempty"`
	RunMode        string `json:"run_mode,omitempty"`
	TableName      string `json:"table_name,omitempty"`
	Delimiter      string `json:"delimiter,omitempty"`
}

// Merge fills empty fields from defaults
func (p Params) Merge(defaults Params) Params {
	pick := func(v, d string) string {
		if v != "" {
			return v
		}

		return d
	}

	return Params{
		RawBasePath:    pick(p.RawBasePath, defaults.RawBasePath),
		BronzeBasePath: pick(p.BronzeBasePath, defaults.BronzeBasePath),
		SilverBasePath: pick(p.SilverBasePath, defaults.SilverBasePath),
		GoldBasePath:   pick(p.GoldBasePath, defaults.GoldBasePath),
		RunMode:        pick(p.RunMode, defaults.RunMode),
		TableName:      pick(p.TableName, defaults.TableName),
		Delimiter:      pick(p.Delimiter, defaults.Delimiter),
	}
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s", ErrMissingParam, name)
	}

	return nil
}

// Validate checks the parameters a layer needs before any I/O. Layer is
// "bronze", "silver" or "gold"; an empty layer validates everything a full
// pipeline run needs.
func (p *Params) Validate(layer string) error {
	checks := []struct {
		name  string
		value string
	}{}

	add := func(name, value string) {
		checks = append(checks, struct {
			name  string
			value string
		}{name, value})
	}

	switch layer {
	case LayerBronze:
		add(ParamRawBasePath, p.RawBasePath)
		add(ParamBronzeBasePath, p.BronzeBasePath)
		add(ParamTableName, p.TableName)
		add(ParamRunMode, p.RunMode)
		add(ParamDelimiter, p.Delimiter)
	case LayerSilver:
		add(ParamBronzeBasePath, p.BronzeBasePath)
		add(ParamSilverBasePath, p.SilverBasePath)
		add(ParamTableName, p.TableName)
	case LayerGold:
		add(ParamSilverBasePath, p.SilverBasePath)
		add(ParamGoldBasePath, p.GoldBasePath)
	default:
		add(ParamRawBasePath, p.RawBasePath)
		add(ParamBronzeBasePath, p.BronzeBasePath)
		add(ParamSilverBasePath, p.SilverBasePath)
		add(ParamGoldBasePath, p.GoldBasePath)
		add(ParamRunMode, p.RunMode)
		add(ParamDelimiter, p.Delimiter)
	}

	for _, c := range checks {
		if c.name == ParamDelimiter {
			if c.value == "" {
				return fmt.Errorf("%w: %s", delimited.ErrEmptyDelimiter, c.name)
			}

			continue
		}

		if err := required(c.name, c.value); err != nil {
			return err
		}
	}

	if p.RunMode != "" {
		if _, err := ParseRunMode(p.RunMode); err != nil {
			return err
		}
	}

	if layer == LayerBronze || layer == LayerSilver || p.TableName != "" {
		if _, err := tablekind.Parse(p.TableName); err != nil {
			return err
		}
	}

	return nil
}
