// Package standardize turns a bronze table into its canonical silver form:
// typed columns, derived fields and no exact duplicate rows.
package standardize

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/store"
	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/ethpandaops/medallion/pkg/tablekind"
	"github.com/ethpandaops/medallion/pkg/transform"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	ErrNoKind   = errors.New("table kind is required")
	ErrNoSource = errors.New("bronze location is required")
	ErrNoTarget = errors.New("silver location is required")
)

// Request describes one standardization
type Request struct {
	Kind   tablekind.Kind
	Source string
	Target string
}

// Validate checks the request before any I/O
func (r *Request) Validate() error {
	switch {
	case r.Kind == nil:
		return ErrNoKind
	case r.Source == "":
		return ErrNoSource
	case r.Target == "":
		return ErrNoTarget
	}

	return nil
}

// Result summarizes a standardization
type Result struct {
	Table             string
	Location          string
	RowsRead          int
	RowsWritten       int
	DuplicatesRemoved int
}

// Pipeline returns the bronze-to-silver steps for a kind, ending in Distinct
func Pipeline(kind tablekind.Kind) *transform.Pipeline {
	p := transform.NewPipeline("standardize_"+kind.Name(), kind.SilverSteps()...)

	return p.Add(transform.Distinct{})
}

// Apply runs the kind's silver pipeline over a bronze dataset
func Apply(ctx context.Context, kind tablekind.Kind, bronze *table.Dataset) (*table.Dataset, error) {
	return Pipeline(kind).Run(ctx, bronze)
}

// Standardize reads the bronze table, applies the kind's silver steps,
// removes exact duplicates and overwrites the silver table
func Standardize(ctx context.Context, eng *engine.Engine, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	name := tablekind.SilverName(req.Kind)
	log := eng.Log.WithFields(logrus.Fields{
		"component": "standardize",
		"table":     name,
	})

	bronze, err := eng.Store.Read(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to read bronze %s: %w", req.Source, err)
	}

	silver, err := Apply(ctx, req.Kind, bronze)
	if err != nil {
		return nil, err
	}

	if err := eng.Store.Write(ctx, req.Target, silver, store.ModeOverwrite); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", req.Target, err)
	}

	if err := eng.Register(ctx, name, req.Target); err != nil {
		return nil, err
	}

	result := &Result{
		Table:             name,
		Location:          req.Target,
		RowsRead:          bronze.Len(),
		RowsWritten:       silver.Len(),
		DuplicatesRemoved: bronze.Len() - silver.Len(),
	}

	log.WithFields(logrus.Fields{
		"rows_read":          result.RowsRead,
		"rows":               result.RowsWritten,
		"duplicates_removed": result.DuplicatesRemoved,
		"location":           req.Target,
	}).Info("Standardized bronze table")

	return result, nil
}
