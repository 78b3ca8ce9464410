// Package store defines the table storage contract used by every stage: read
// a whole table, and write a dataset by overwriting or appending.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/medallion/pkg/observability"
	"github.com/ethpandaops/medallion/pkg/table"
)

// Define static errors
var (
	ErrTableNotFound = errors.New("table not found")
	ErrInvalidMode   = errors.New("invalid write mode")
	ErrEmptyLocation = errors.New("table location is empty")
)

// Mode selects how Write treats existing content
type Mode string

// Write modes
const (
	// ModeOverwrite atomically replaces the table's content
	ModeOverwrite Mode = "overwrite"
	// ModeAppend adds rows to the table, creating it when absent
	ModeAppend Mode = "append"
)

// ParseMode parses a write mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOverwrite, ModeAppend:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Store reads and writes whole tables by location. A successful Write is
// visible in full to the next Read; a failed Write leaves the last committed
// content in place. Appending a dataset whose schema differs from the table's
// fails with table.ErrSchemaMismatch.
type Store interface {
	// Name identifies the store implementation
	Name() string
	// Read loads the current content of a table
	Read(ctx context.Context, location string) (*table.Dataset, error)
	// Write stores a dataset at location
	Write(ctx context.Context, location string, ds *table.Dataset, mode Mode) error
	// Exists reports whether a table has been written at location
	Exists(ctx context.Context, location string) (bool, error)
}

// Instrument wraps a store so that every operation is counted and timed
func Instrument(s Store) Store {
	return &instrumented{next: s}
}

type instrumented struct {
	next Store
}

func (i *instrumented) Name() string {
	return i.next.Name()
}

func (i *instrumented) Read(ctx context.Context, location string) (*table.Dataset, error) {
	start := time.Now()
	ds, err := i.next.Read(ctx, location)
	i.record("read", start, err)

	return ds, err
}

func (i *instrumented) Write(ctx context.Context, location string, ds *table.Dataset, mode Mode) error {
	start := time.Now()
	err := i.next.Write(ctx, location, ds, mode)
	i.record("write", start, err)

	return err
}

func (i *instrumented) Exists(ctx context.Context, location string) (bool, error) {
	start := time.Now()
	ok, err := i.next.Exists(ctx, location)
	i.record("exists", start, err)

	return ok, err
}

func (i *instrumented) record(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	observability.RecordStoreOperation(i.next.Name(), operation, status, time.Since(start).Seconds())
}

// CheckAppend validates that ds may be appended to a table with schema existing
func CheckAppend(existing table.Schema, ds *table.Dataset) error {
	if !existing.Equal(ds.Schema()) {
		return fmt.Errorf("%w: table has (%s), dataset has (%s)", table.ErrSchemaMismatch, existing, ds.Schema())
	}

	return nil
}
