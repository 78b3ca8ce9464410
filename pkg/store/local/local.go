// Package local implements a versioned table store on the local filesystem.
//
// A table is a directory. Rows live in immutable JSONEachRow part files and a
// table version is a commit file under _log/ listing the live parts and the
// schema. Writing a new commit file is the single atomic step of every write,
// so a failed write leaves the previous version readable.
package local

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethpandaops/medallion/pkg/store"
	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Define static errors
var (
	ErrCorruptCommit = errors.New("corrupt commit file")
)

const (
	logDir        = "_log"
	commitExt     = ".json"
	partPrefix    = "part-"
	partExt       = ".jsonl"
	versionDigits = 20
	maxRowBytes   = 16 * 1024 * 1024
	dirPerm       = 0o755
	filePerm      = 0o644
)

// Commit is one table version
type Commit struct {
	Version   int64        `json:"version"`
	Timestamp time.Time    `json:"timestamp"`
	Mode      store.Mode   `json:"mode"`
	Schema    table.Schema `json:"schema"`
	Files     []string     `json:"files"`
	Rows      int          `json:"rows"`
}

// Store is the local filesystem store
type Store struct {
	log logrus.FieldLogger
	now func() time.Time
}

// New creates a local store
func New(log logrus.FieldLogger) *Store {
	return &Store{
		log: log.WithField("component", "local-store"),
		now: time.Now,
	}
}

// Name implements store.Store
func (s *Store) Name() string {
	return "local"
}

// Exists implements store.Store
func (s *Store) Exists(_ context.Context, location string) (bool, error) {
	c, err := s.latest(location)
	if err != nil {
		return false, err
	}

	return c != nil, nil
}

// Read implements store.Store
func (s *Store) Read(ctx context.Context, location string) (*table.Dataset, error) {
	c, err := s.latest(location)
	if err != nil {
		return nil, err
	}

	if c == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrTableNotFound, location)
	}

	rows := make([]table.Row, 0, c.Rows)

	for _, name := range c.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		part, err := s.readPart(filepath.Join(location, name), c.Schema)
		if err != nil {
			return nil, err
		}

		rows = append(rows, part...)
	}

	return table.New(c.Schema, rows)
}

// Write implements store.Store
func (s *Store) Write(ctx context.Context, location string, ds *table.Dataset, mode store.Mode) error {
	if location == "" {
		return store.ErrEmptyLocation
	}

	if mode != store.ModeOverwrite && mode != store.ModeAppend {
		return fmt.Errorf("%w: %q", store.ErrInvalidMode, mode)
	}

	prev, err := s.latest(location)
	if err != nil {
		return err
	}

	next := &Commit{
		Timestamp: s.now().UTC(),
		Mode:      mode,
		Schema:    ds.Schema(),
		Rows:      ds.Len(),
	}

	if prev != nil {
		next.Version = prev.Version + 1

		if mode == store.ModeAppend {
			if err := store.CheckAppend(prev.Schema, ds); err != nil {
				return err
			}

			next.Files = append(next.Files, prev.Files...)
			next.Rows += prev.Rows
		}
	}

	if err := os.MkdirAll(filepath.Join(location, logDir), dirPerm); err != nil {
		return fmt.Errorf("failed to create table directory: %w", err)
	}

	part, err := s.writePart(ctx, location, ds)
	if err != nil {
		return err
	}

	next.Files = append(next.Files, part)

	if err := s.commit(location, next); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"location": location,
		"version":  next.Version,
		"mode":     mode,
		"rows":     ds.Len(),
	}).Debug("Committed table version")

	return nil
}

// History returns every commit of a table, oldest first
func (s *Store) History(location string) ([]Commit, error) {
	versions, err := s.versions(location)
	if err != nil {
		return nil, err
	}

	out := make([]Commit, 0, len(versions))

	for _, v := range versions {
		c, err := s.readCommit(location, v)
		if err != nil {
			return nil, err
		}

		out = append(out, *c)
	}

	return out, nil
}

func (s *Store) versions(location string) ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(location, logDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list commits: %w", err)
	}

	versions := make([]int64, 0, len(entries))

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, commitExt) || strings.HasPrefix(name, ".") {
			continue
		}

		v, err := strconv.ParseInt(strings.TrimSuffix(name, commitExt), 10, 64)
		if err != nil {
			continue
		}

		versions = append(versions, v)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	return versions, nil
}

// latest returns the newest commit, or nil when the table was never written
func (s *Store) latest(location string) (*Commit, error) {
	versions, err := s.versions(location)
	if err != nil || len(versions) == 0 {
		return nil, err
	}

	return s.readCommit(location, versions[len(versions)-1])
}

func commitName(version int64) string {
	return fmt.Sprintf("%0*d%s", versionDigits, version, commitExt)
}

func (s *Store) readCommit(location string, version int64) (*Commit, error) {
	path := filepath.Join(location, logDir, commitName(version))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit: %w", err)
	}

	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptCommit, path, err)
	}

	if _, err := table.NewSchema(c.Schema...); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptCommit, path, err)
	}

	return &c, nil
}

func (s *Store) commit(location string, c *Commit) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal commit: %w", err)
	}

	dir := filepath.Join(location, logDir)
	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")

	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		return fmt.Errorf("failed to write commit: %w", err)
	}

	if err := os.Rename(tmp, filepath.Join(dir, commitName(c.Version))); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to publish commit: %w", err)
	}

	return nil
}

func (s *Store) writePart(ctx context.Context, location string, ds *table.Dataset) (name string, err error) {
	name = partPrefix + uuid.NewString() + partExt
	path := filepath.Join(location, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		return "", fmt.Errorf("failed to create part file: %w", err)
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close part file: %w", closeErr)
		}

		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w := bufio.NewWriter(f)

	for i, row := range ds.Rows() {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}

		data, err := table.MarshalRow(ds.Schema(), row)
		if err != nil {
			return "", fmt.Errorf("row %d: %w", i, err)
		}

		if _, err := w.Write(append(data, '\n')); err != nil {
			return "", fmt.Errorf("failed to write part file: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush part file: %w", err)
	}

	return name, f.Sync()
}

func (s *Store) readPart(path string, schema table.Schema) ([]table.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open part file: %w", err)
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			s.log.WithError(closeErr).Debug("Failed to close part file")
		}
	}()

	return decodeRows(f, schema, path)
}

func decodeRows(r io.Reader, schema table.Schema, name string) ([]table.Row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRowBytes)

	var rows []table.Row

	line := 0

	for sc.Scan() {
		line++

		if len(strings.TrimSpace(sc.Text())) == 0 {
			continue
		}

		row, err := table.UnmarshalRow(schema, sc.Bytes())
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}

		rows = append(rows, row)
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	return rows, nil
}
