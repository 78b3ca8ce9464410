// Package clickhouse stores tables in ClickHouse. A location is
// "database.table", or a bare table name in the configured database.
//
// Overwrite loads the new content into a staging table and swaps it in with
// EXCHANGE TABLES (or RENAME TABLE for a first write), so readers never see a
// partial table. Append inserts directly.
package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethpandaops/medallion/pkg/clickhouse"
	"github.com/ethpandaops/medallion/pkg/store"
	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// insertBatchRows bounds the rows sent per INSERT
const insertBatchRows = 50_000

// Store implements store.Store on a ClickHouse HTTP client
type Store struct {
	log      logrus.FieldLogger
	client   clickhouse.ClientInterface
	database string
	mapper   func(string) string
}

// New creates a ClickHouse store. Database names are mapped through
// cfg.MapDatabase.
func New(log logrus.FieldLogger, client clickhouse.ClientInterface, cfg *clickhouse.Config) *Store {
	database := cfg.Database
	if database == "" {
		database = "default"
	}

	return &Store{
		log:      log.WithField("component", "clickhouse-store"),
		client:   client,
		database: database,
		mapper:   cfg.MapDatabase,
	}
}

// Name implements store.Store
func (s *Store) Name() string {
	return "clickhouse"
}

type tableRef struct {
	database string
	table    string
}

func (r tableRef) String() string {
	return "`" + r.database + "`.`" + r.table + "`"
}

func (s *Store) resolve(location string) (tableRef, error) {
	if location == "" {
		return tableRef{}, store.ErrEmptyLocation
	}

	ref := tableRef{database: s.database, table: location}
	if db, tbl, ok := strings.Cut(location, "."); ok {
		ref = tableRef{database: db, table: tbl}
	}

	ref.database = s.mapper(ref.database)

	for _, part := range []string{ref.database, ref.table} {
		if _, err := clickhouse.QuoteIdentifier(part); err != nil {
			return tableRef{}, err
		}
	}

	return ref, nil
}

// Exists implements store.Store
func (s *Store) Exists(ctx context.Context, location string) (bool, error) {
	ref, err := s.resolve(location)
	if err != nil {
		return false, err
	}

	return clickhouse.TableExists(ctx, s.client, ref.database, ref.table)
}

// Read implements store.Store
func (s *Store) Read(ctx context.Context, location string) (*table.Dataset, error) {
	ref, err := s.resolve(location)
	if err != nil {
		return nil, err
	}

	exists, err := clickhouse.TableExists(ctx, s.client, ref.database, ref.table)
	if err != nil {
		return nil, err
	}

	if !exists {
		return nil, fmt.Errorf("%w: %s", store.ErrTableNotFound, location)
	}

	result, err := s.client.Query(ctx, fmt.Sprintf(
		"SELECT * FROM %s SETTINGS output_format_json_quote_64bit_integers = 0, output_format_json_quote_denormals = 0", ref))
	if err != nil {
		return nil, err
	}

	schema, err := clickhouse.SchemaFromMeta(result.Meta)
	if err != nil {
		return nil, err
	}

	rows := make([]table.Row, len(result.Data))

	for i, raw := range result.Data {
		row, err := table.UnmarshalRow(schema, raw)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", location, i, err)
		}

		rows[i] = row
	}

	return table.New(schema, rows)
}

// Write implements store.Store
func (s *Store) Write(ctx context.Context, location string, ds *table.Dataset, mode store.Mode) error {
	ref, err := s.resolve(location)
	if err != nil {
		return err
	}

	switch mode {
	case store.ModeOverwrite:
		return s.overwrite(ctx, ref, ds)
	case store.ModeAppend:
		return s.append(ctx, ref, ds)
	default:
		return fmt.Errorf("%w: %q", store.ErrInvalidMode, mode)
	}
}

func (s *Store) append(ctx context.Context, ref tableRef, ds *table.Dataset) error {
	exists, err := clickhouse.TableExists(ctx, s.client, ref.database, ref.table)
	if err != nil {
		return err
	}

	if exists {
		current, err := s.schemaOf(ctx, ref)
		if err != nil {
			return err
		}

		if err := store.CheckAppend(current, ds); err != nil {
			return err
		}
	} else if err := s.create(ctx, ref, ds.Schema()); err != nil {
		return err
	}

	return s.insert(ctx, ref, ds)
}

func (s *Store) overwrite(ctx context.Context, ref tableRef, ds *table.Dataset) error {
	staging := tableRef{
		database: ref.database,
		table:    ref.table + "__staging_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
	}

	if err := s.create(ctx, staging, ds.Schema()); err != nil {
		return err
	}

	if err := s.insert(ctx, staging, ds); err != nil {
		s.drop(staging)
		return err
	}

	exists, err := clickhouse.TableExists(ctx, s.client, ref.database, ref.table)
	if err != nil {
		s.drop(staging)
		return err
	}

	if !exists {
		if _, err := s.client.Execute(ctx, fmt.Sprintf("RENAME TABLE %s TO %s", staging, ref)); err != nil {
			s.drop(staging)
			return fmt.Errorf("failed to publish %s: %w", ref, err)
		}

		return nil
	}

	if _, err := s.client.Execute(ctx, fmt.Sprintf("EXCHANGE TABLES %s AND %s", staging, ref)); err != nil {
		s.drop(staging)
		return fmt.Errorf("failed to swap %s: %w", ref, err)
	}

	// staging now holds the previous content
	s.drop(staging)

	return nil
}

func (s *Store) schemaOf(ctx context.Context, ref tableRef) (table.Schema, error) {
	result, err := s.client.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", ref))
	if err != nil {
		return nil, err
	}

	return clickhouse.SchemaFromMeta(result.Meta)
}

func (s *Store) create(ctx context.Context, ref tableRef, schema table.Schema) error {
	if _, err := s.client.Execute(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", ref.database)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", ref.database, err)
	}

	query, err := clickhouse.CreateTableQuery(ref.String(), schema)
	if err != nil {
		return err
	}

	if _, err := s.client.Execute(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s: %w", ref, err)
	}

	return nil
}

func (s *Store) insert(ctx context.Context, ref tableRef, ds *table.Dataset) error {
	batch := make([][]byte, 0, min(ds.Len(), insertBatchRows))

	for i, row := range ds.Rows() {
		data, err := table.MarshalRow(ds.Schema(), row)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}

		batch = append(batch, data)

		if len(batch) == insertBatchRows {
			if err := s.client.InsertJSONEachRow(ctx, ref.String(), batch); err != nil {
				return err
			}

			batch = batch[:0]
		}
	}

	return s.client.InsertJSONEachRow(ctx, ref.String(), batch)
}

// drop removes a staging table on a fresh context so cleanup survives a
// cancelled write
func (s *Store) drop(ref tableRef) {
	if _, err := s.client.Execute(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", ref)); err != nil {
		s.log.WithError(err).WithField("table", ref.String()).Warn("Failed to drop staging table")
	}
}
