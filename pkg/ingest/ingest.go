// Package ingest loads raw delimited files into a bronze table, stamping
// every row with the ingestion time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/medallion/pkg/delimited"
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/store"
	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/ethpandaops/medallion/pkg/tablekind"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	ErrNoKind   = errors.New("table kind is required")
	ErrNoSource = errors.New("source path is required")
	ErrNoTarget = errors.New("target location is required")
)

// Request describes one ingestion
type Request struct {
	Kind    tablekind.Kind
	Source  string
	Target  string
	Mode    store.Mode
	Options delimited.Options
}

// Validate checks the request before any I/O
func (r *Request) Validate() error {
	if r.Kind == nil {
		return ErrNoKind
	}

	if r.Source == "" {
		return ErrNoSource
	}

	if r.Target == "" {
		return ErrNoTarget
	}

	if _, err := store.ParseMode(string(r.Mode)); err != nil {
		return err
	}

	return r.Options.Validate()
}

// Result summarizes an ingestion
type Result struct {
	Table       string
	Location    string
	Mode        store.Mode
	IngestTS    time.Time
	Stats       delimited.Stats
	RowsWritten int
	// TableRows is the row count of the bronze table after the write
	TableRows int
}

// Ingest reads req.Source, appends ingest_ts and ingest_date to every row
// and writes the result to req.Target. On any parse error under the fail
// policy nothing is written.
func Ingest(ctx context.Context, eng *engine.Engine, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	name := tablekind.BronzeName(req.Kind)
	log := eng.Log.WithFields(logrus.Fields{
		"component": "ingest",
		"table":     name,
		"mode":      req.Mode,
	})

	reader, err := delimited.NewReader(log, req.Kind.RawSchema(), req.Options)
	if err != nil {
		return nil, err
	}

	ingestTS := eng.Now()
	ingestDate := table.TruncateDate(ingestTS)

	var rows []table.Row

	stats, err := reader.ScanPath(ctx, req.Source, func(row table.Row) error {
		rows = append(rows, append(row, ingestTS, ingestDate))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", req.Source, err)
	}

	ds, err := table.New(req.Kind.BronzeSchema(), rows)
	if err != nil {
		return nil, err
	}

	if err := eng.Store.Write(ctx, req.Target, ds, req.Mode); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", req.Target, err)
	}

	if err := eng.Register(ctx, name, req.Target); err != nil {
		return nil, err
	}

	written, err := eng.Store.Read(ctx, req.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to read back %s: %w", req.Target, err)
	}

	log.WithFields(logrus.Fields{
		"files":      stats.Files,
		"rows":       ds.Len(),
		"rejected":   stats.Rejected,
		"table_rows": written.Len(),
		"location":   req.Target,
	}).Info("Ingested raw files")

	return &Result{
		Table:       name,
		Location:    req.Target,
		Mode:        req.Mode,
		IngestTS:    ingestTS,
		Stats:       stats,
		RowsWritten: ds.Len(),
		TableRows:   written.Len(),
	}, nil
}
