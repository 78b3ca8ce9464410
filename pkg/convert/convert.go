// Package convert translates the legacy "::"-delimited MovieLens files into
// comma-delimited files with a header, optionally keeping only the ratings of
// a range of calendar years.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethpandaops/medallion/pkg/delimited"
	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/ethpandaops/medallion/pkg/tablekind"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	ErrNoRatings        = errors.New("ratings source is required")
	ErrNoMovies         = errors.New("movies source is required")
	ErrNoOutDir         = errors.New("output directory is required")
	ErrInvalidYearRange = errors.New("start year is after end year")
)

// Output file names
const (
	RatingsFile = "ratings_subset.csv"
	MoviesFile  = "movies.csv"
)

// LegacyDelimiter separates fields of the legacy files
const LegacyDelimiter = "::"

// Options configures one conversion
type Options struct {
	Ratings string
	Movies  string
	OutDir  string
	// StartYear and EndYear bound the ratings by the UTC calendar year of
	// their timestamp, inclusively. Filtering needs both.
	StartYear *int
	EndYear   *int
	// ChunkSize > 0 processes ratings in chunks of that many rows; 0 or less
	// reads them in one pass. Both produce the same output.
	ChunkSize int
}

// Validate checks the options before any I/O
func (o *Options) Validate() error {
	switch {
	case o.Ratings == "":
		return ErrNoRatings
	case o.Movies == "":
		return ErrNoMovies
	case o.OutDir == "":
		return ErrNoOutDir
	case o.filtered() && *o.StartYear > *o.EndYear:
		return fmt.Errorf("%w: %d > %d", ErrInvalidYearRange, *o.StartYear, *o.EndYear)
	}

	return nil
}

func (o *Options) filtered() bool {
	return o.StartYear != nil && o.EndYear != nil
}

// Result lists the written files
type Result struct {
	RatingsPath string
	MoviesPath  string
	Ratings     int
	Movies      int
}

// Converter runs conversions
type Converter struct {
	log logrus.FieldLogger
}

// New creates a converter
func New(log logrus.FieldLogger) *Converter {
	return &Converter{log: log.WithField("component", "convert")}
}

func legacyOptions() delimited.Options {
	return delimited.Options{
		Delimiter: LegacyDelimiter,
		Encoding:  delimited.EncodingLatin1,
		Malformed: delimited.PolicyFail,
	}
}

// Convert writes RatingsFile and MoviesFile into opts.OutDir, creating it if
// needed. Any read or parse error fails the conversion.
func (c *Converter) Convert(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	if (opts.StartYear == nil) != (opts.EndYear == nil) {
		c.log.Warn("Year filter needs both start and end year, converting all ratings")
	}

	if err := os.MkdirAll(opts.OutDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := &Result{
		RatingsPath: filepath.Join(opts.OutDir, RatingsFile),
		MoviesPath:  filepath.Join(opts.OutDir, MoviesFile),
	}

	var err error

	result.Ratings, err = c.convertRatings(ctx, opts, result.RatingsPath)
	if err != nil {
		return nil, err
	}

	result.Movies, err = c.convertMovies(ctx, opts.Movies, result.MoviesPath)
	if err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"ratings":    result.Ratings,
		"movies":     result.Movies,
		"chunk_size": opts.ChunkSize,
	}).Info("Conversion completed")

	return result, nil
}

// yearFilter keeps rows whose timestamp falls in [start, end]. A NULL
// timestamp never matches.
func yearFilter(schema table.Schema, start, end int) func(table.Row) bool {
	pos := schema.Index("timestamp")

	return func(row table.Row) bool {
		ts, ok := row[pos].(int64)
		if !ok {
			return false
		}

		year := time.Unix(ts, 0).UTC().Year()

		return year >= start && year <= end
	}
}

func (c *Converter) convertRatings(ctx context.Context, opts Options, dst string) (int, error) {
	schema := tablekind.Ratings{}.RawSchema()

	reader, err := delimited.NewReader(c.log, schema, legacyOptions())
	if err != nil {
		return 0, err
	}

	keep := func(table.Row) bool { return true }
	if opts.filtered() {
		keep = yearFilter(schema, *opts.StartYear, *opts.EndYear)
	}

	return writeFile(dst, schema, func(w *delimited.Writer) (int, error) {
		if opts.ChunkSize > 0 {
			return scanChunked(ctx, reader, opts.Ratings, opts.ChunkSize, keep, w)
		}

		ds, _, err := reader.ReadPath(ctx, opts.Ratings)
		if err != nil {
			return 0, err
		}

		written := 0

		for _, row := range ds.Rows() {
			if !keep(row) {
				continue
			}

			if err := w.Write(row); err != nil {
				return written, err
			}

			written++
		}

		return written, nil
	})
}

// scanChunked holds at most size rows in memory, filtering and writing each
// chunk once it is full
func scanChunked(ctx context.Context, reader *delimited.Reader, src string, size int, keep func(table.Row) bool, w *delimited.Writer) (int, error) {
	chunk := make([]table.Row, 0, size)
	written := 0

	flush := func() error {
		for _, row := range chunk {
			if !keep(row) {
				continue
			}

			if err := w.Write(row); err != nil {
				return err
			}

			written++
		}

		chunk = chunk[:0]

		return nil
	}

	_, err := reader.ScanPath(ctx, src, func(row table.Row) error {
		chunk = append(chunk, row)
		if len(chunk) < size {
			return nil
		}

		return flush()
	})
	if err != nil {
		return written, err
	}

	return written, flush()
}

func (c *Converter) convertMovies(ctx context.Context, src, dst string) (int, error) {
	schema := tablekind.Movies{}.RawSchema()

	reader, err := delimited.NewReader(c.log, schema, legacyOptions())
	if err != nil {
		return 0, err
	}

	return writeFile(dst, schema, func(w *delimited.Writer) (int, error) {
		written := 0

		_, err := reader.ScanPath(ctx, src, func(row table.Row) error {
			written++
			return w.Write(row)
		})

		return written, err
	})
}

// writeFile writes through a temporary file in the destination directory and
// renames it into place once fill succeeds
func writeFile(dst string, schema table.Schema, fill func(w *delimited.Writer) (int, error)) (n int, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dst, err)
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := delimited.NewWriter(tmp, schema)

	n, err = fill(w)
	if err != nil {
		return 0, err
	}

	if err = w.Flush(); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", dst, err)
	}

	if err = tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close %s: %w", dst, err)
	}

	if err = os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("failed to rename %s: %w", dst, err)
	}

	return n, nil
}
