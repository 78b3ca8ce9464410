package clickhouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethpandaops/medallion/pkg/table"
)

// Define static errors
var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrUnsupportedType   = errors.New("unsupported ClickHouse column type")
)

//nolint:gochecknoglobals // Compiled once
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// QuoteIdentifier validates a database, table or column name and quotes it
func QuoteIdentifier(name string) (string, error) {
	if !identifierPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}

	return "`" + name + "`", nil
}

// TableExists checks if a table exists in the given database
func TableExists(ctx context.Context, client ClientInterface, database, tableName string) (bool, error) {
	if !identifierPattern.MatchString(database) || !identifierPattern.MatchString(tableName) {
		return false, fmt.Errorf("%w: %s.%s", ErrInvalidIdentifier, database, tableName)
	}

	query := fmt.Sprintf(`SELECT count() AS count FROM system.tables WHERE database = '%s' AND name = '%s'`, database, tableName)

	result, err := client.Query(ctx, query)
	if err != nil {
		return false, err
	}

	if len(result.Data) == 0 {
		return false, nil
	}

	var row struct {
		Count uint64 `json:"count,string"`
	}

	if err := json.Unmarshal(result.Data[0], &row); err != nil {
		return false, fmt.Errorf("failed to unmarshal count: %w", err)
	}

	return row.Count > 0, nil
}

// ColumnType maps a table column type to its ClickHouse type. Arrays cannot
// be Nullable in ClickHouse, so a NULL array is stored as an empty one.
func ColumnType(t table.Type) (string, error) {
	switch t {
	case table.TypeInt:
		return "Nullable(Int32)", nil
	case table.TypeLong:
		return "Nullable(Int64)", nil
	case table.TypeDouble:
		return "Nullable(Float64)", nil
	case table.TypeString:
		return "Nullable(String)", nil
	case table.TypeTimestamp:
		return "Nullable(DateTime64(9, 'UTC'))", nil
	case table.TypeDate:
		return "Nullable(Date32)", nil
	case table.TypeStringArray:
		return "Array(String)", nil
	default:
		return "", fmt.Errorf("%w: %s", table.ErrUnknownType, t)
	}
}

// ParseColumnType maps a ClickHouse type back to a table column type
func ParseColumnType(chType string) (table.Type, error) {
	t := strings.TrimSpace(chType)

	for _, wrapper := range []string{"Nullable(", "LowCardinality("} {
		if strings.HasPrefix(t, wrapper) && strings.HasSuffix(t, ")") {
			t = strings.TrimSuffix(strings.TrimPrefix(t, wrapper), ")")
		}
	}

	switch {
	case t == "Int32", t == "Int16", t == "Int8", t == "UInt16", t == "UInt8":
		return table.TypeInt, nil
	case t == "Int64", t == "UInt32":
		return table.TypeLong, nil
	case t == "Float64", t == "Float32":
		return table.TypeDouble, nil
	case t == "String", strings.HasPrefix(t, "FixedString("):
		return table.TypeString, nil
	case strings.HasPrefix(t, "DateTime"):
		return table.TypeTimestamp, nil
	case t == "Date", t == "Date32":
		return table.TypeDate, nil
	case t == "Array(String)", t == "Array(LowCardinality(String))":
		return table.TypeStringArray, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, chType)
	}
}

// SchemaFromMeta builds a table schema from a FORMAT JSON meta block
func SchemaFromMeta(meta []Column) (table.Schema, error) {
	fields := make([]table.Field, len(meta))

	for i, col := range meta {
		t, err := ParseColumnType(col.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}

		fields[i] = table.Field{Name: col.Name, Type: t}
	}

	return table.NewSchema(fields...)
}

// CreateTableQuery renders a CREATE TABLE statement for a schema
func CreateTableQuery(qualified string, schema table.Schema) (string, error) {
	cols := make([]string, len(schema))

	for i, f := range schema {
		name, err := QuoteIdentifier(f.Name)
		if err != nil {
			return "", err
		}

		chType, err := ColumnType(f.Type)
		if err != nil {
			return "", err
		}

		cols[i] = name + " " + chType
	}

	return fmt.Sprintf("CREATE TABLE %s (%s) ENGINE = MergeTree ORDER BY tuple()", qualified, strings.Join(cols, ", ")), nil
}
