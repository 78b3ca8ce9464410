package delimited

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/sirupsen/logrus"
)

const (
	utf8BOM       = "\uFEFF"
	maxLineBytes  = 4 * 1024 * 1024
	ctxCheckEvery = 4096
)

// Stats summarizes one read
type Stats struct {
	Files    []string
	Lines    int
	Rows     int
	Rejected int
}

func (s *Stats) add(other Stats) {
	s.Files = append(s.Files, other.Files...)
	s.Lines += other.Lines
	s.Rows += other.Rows
	s.Rejected += other.Rejected
}

// RowFunc receives every parsed row in source order
type RowFunc func(row table.Row) error

// Reader parses delimited sources into rows of a fixed schema
type Reader struct {
	log    logrus.FieldLogger
	schema table.Schema
	opts   Options
}

// NewReader creates a reader for the given schema
func NewReader(log logrus.FieldLogger, schema table.Schema, opts Options) (*Reader, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &Reader{
		log:    log.WithField("component", "delimited"),
		schema: schema,
		opts:   opts,
	}, nil
}

// Schema returns the schema rows are parsed into
func (r *Reader) Schema() table.Schema {
	return r.schema
}

// ReadPath reads a file, or every file of a directory, into one dataset
func (r *Reader) ReadPath(ctx context.Context, path string) (*table.Dataset, Stats, error) {
	rows := make([]table.Row, 0)

	stats, err := r.ScanPath(ctx, path, func(row table.Row) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, stats, err
	}

	ds, err := table.New(r.schema, rows)
	if err != nil {
		return nil, stats, err
	}

	return ds, stats, nil
}

// ScanPath streams a file, or every file of a directory, through fn
func (r *Reader) ScanPath(ctx context.Context, path string, fn RowFunc) (Stats, error) {
	var total Stats

	files, err := SourceFiles(path)
	if err != nil {
		return total, err
	}

	for _, file := range files {
		stats, err := r.scanFile(ctx, file, fn)
		total.add(stats)

		if err != nil {
			return total, err
		}
	}

	return total, nil
}

func (r *Reader) scanFile(ctx context.Context, path string, fn RowFunc) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open source: %w", err)
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			r.log.WithError(closeErr).WithField("file", path).Debug("Failed to close source")
		}
	}()

	return r.Scan(ctx, path, f, fn)
}

// Scan parses src, named name in errors and logs, and passes each row to fn
func (r *Reader) Scan(ctx context.Context, name string, src io.Reader, fn RowFunc) (Stats, error) {
	stats := Stats{Files: []string{name}}
	records := r.newSource(name, r.opts.decode(src))

	positions, width, err := r.positions(name, records)
	if err != nil {
		return stats, err
	}

	for {
		if stats.Lines%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}

		fields, line, err := records.next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err == nil {
			stats.Lines++

			var row table.Row

			row, err = r.parseRecord(name, line, fields, positions, width)
			if err == nil {
				if err := fn(row); err != nil {
					return stats, err
				}

				stats.Rows++

				continue
			}
		}

		var rowErr *RowError
		if !errors.As(err, &rowErr) || r.opts.policy() == PolicyFail {
			return stats, err
		}

		stats.Rejected++
		r.log.WithFields(logrus.Fields{
			"file":   rowErr.File,
			"line":   rowErr.Line,
			"reason": rowErr.Reason,
		}).Warn("Skipping malformed row")
	}

	r.log.WithFields(logrus.Fields{
		"file":     name,
		"rows":     stats.Rows,
		"rejected": stats.Rejected,
	}).Debug("Read source")

	return stats, nil
}

// positions maps schema columns to record positions. With a header the
// mapping is by case-insensitive name; without one it is positional.
func (r *Reader) positions(name string, records source) ([]int, int, error) {
	positions := make([]int, len(r.schema))

	if !r.opts.HasHeader() {
		for i := range positions {
			positions[i] = i
		}

		return positions, len(r.schema), nil
	}

	header, _, err := records.next()
	if errors.Is(err, io.EOF) {
		return positions, 0, nil
	}

	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header of %s: %w", name, err)
	}

	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	byName := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := byName[key]; !dup {
			byName[key] = i
		}
	}

	for i, f := range r.schema {
		pos, ok := byName[strings.ToLower(f.Name)]
		if !ok {
			return nil, 0, fmt.Errorf("%w: %s in %s", ErrMissingColumn, f.Name, name)
		}

		positions[i] = pos
	}

	return positions, len(header), nil
}

func (r *Reader) parseRecord(name string, line int, fields []string, positions []int, width int) (table.Row, error) {
	if len(fields) != width {
		return nil, &RowError{
			File:   name,
			Line:   line,
			Reason: fmt.Sprintf("expected %d fields, got %d", width, len(fields)),
		}
	}

	row := make(table.Row, len(r.schema))

	for i, f := range r.schema {
		v, err := ParseField(fields[positions[i]], f.Type)
		if err != nil {
			return nil, &RowError{
				File:   name,
				Line:   line,
				Reason: fmt.Sprintf("column %s: %v", f.Name, err),
			}
		}

		row[i] = v
	}

	return row, nil
}

// ParseField parses one text field as column type t. Numeric fields are
// strict: surrounding space is allowed, anything else that is not a finite
// number is an error. An empty numeric field is NULL; strings are kept verbatim.
func ParseField(s string, t table.Type) (any, error) {
	if t == table.TypeString {
		return s, nil
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	switch t {
	case table.TypeInt:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid %s", s, t)
		}

		return int32(n), nil
	case table.TypeLong:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid %s", s, t)
		}

		return n, nil
	case table.TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%q is not a valid %s", s, t)
		}

		return f, nil
	default:
		v, ok := table.Cast(s, t)
		if !ok {
			return nil, fmt.Errorf("%q is not a valid %s", s, t)
		}

		return v, nil
	}
}

// SourceFiles lists the files behind a source location. A directory yields
// its regular files in lexical order, skipping names that start with "." or
// "_".
func SourceFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source: %w", err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list source: %w", err)
	}

	files := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasPrefix(e.Name(), "_") {
			continue
		}

		files = append(files, filepath.Join(path, e.Name()))
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSourceFiles, path)
	}

	return files, nil
}

// source yields split records and their 1-based line numbers
type source interface {
	next() ([]string, int, error)
}

func (r *Reader) newSource(name string, src io.Reader) source {
	if utf8.RuneCountInString(r.opts.Delimiter) == 1 {
		cr := csv.NewReader(src)
		cr.Comma, _ = utf8.DecodeRuneInString(r.opts.Delimiter)
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = !r.opts.HasHeader()

		return &csvSource{name: name, cr: cr}
	}

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	return &splitSource{sc: sc, sep: r.opts.Delimiter}
}

type csvSource struct {
	name string
	cr   *csv.Reader
}

func (c *csvSource) next() ([]string, int, error) {
	rec, err := c.cr.Read()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, pe.StartLine, &RowError{File: c.name, Line: pe.StartLine, Reason: pe.Err.Error()}
		}

		return nil, 0, err
	}

	line, _ := c.cr.FieldPos(0)

	return rec, line, nil
}

// splitSource splits lines on a literal, possibly multi-character, separator.
// Blank lines are skipped.
type splitSource struct {
	sc   *bufio.Scanner
	sep  string
	line int
}

func (s *splitSource) next() ([]string, int, error) {
	for s.sc.Scan() {
		s.line++

		text := strings.TrimRight(s.sc.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		return strings.Split(text, s.sep), s.line, nil
	}

	if err := s.sc.Err(); err != nil {
		return nil, s.line, fmt.Errorf("failed to read line %d: %w", s.line+1, err)
	}

	return nil, s.line, io.EOF
}
