package table

import (
	"fmt"
)

// Row is one record; values line up with the schema
type Row []any

// Dataset is an immutable table. Stages never edit a dataset they were given,
// they build a new one.
type Dataset struct {
	schema Schema
	rows   []Row
}

// New validates rows against the schema and returns a dataset owning them.
// Callers must not modify rows after handing them over.
func New(schema Schema, rows []Row) (*Dataset, error) {
	for i, row := range rows {
		if len(row) != len(schema) {
			return nil, fmt.Errorf("%w: row %d has %d values, schema has %d columns", ErrRowWidth, i, len(row), len(schema))
		}

		for j, v := range row {
			if !Conforms(v, schema[j].Type) {
				return nil, fmt.Errorf("%w: row %d column %s (%s) holds %T", ErrValueType, i, schema[j].Name, schema[j].Type, v)
			}
		}
	}

	if rows == nil {
		rows = []Row{}
	}

	return &Dataset{schema: schema, rows: rows}, nil
}

// Empty returns a dataset with no rows
func Empty(schema Schema) *Dataset {
	return &Dataset{schema: schema, rows: []Row{}}
}

// Schema returns the dataset schema
func (d *Dataset) Schema() Schema {
	return d.schema
}

// Rows returns the rows. The slice is shared and must be treated as read-only.
func (d *Dataset) Rows() []Row {
	return d.rows
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Value returns the named column of row i
func (d *Dataset) Value(i int, column string) (any, error) {
	pos := d.schema.Index(column)
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}

	return d.rows[i][pos], nil
}

// Column returns all values of the named column
func (d *Dataset) Column(column string) ([]any, error) {
	pos := d.schema.Index(column)
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}

	out := make([]any, len(d.rows))
	for i, row := range d.rows {
		out[i] = row[pos]
	}

	return out, nil
}

// Concat returns a new dataset holding the rows of all inputs in order.
// Every input must share the first input's schema.
func Concat(first *Dataset, rest ...*Dataset) (*Dataset, error) {
	total := first.Len()
	for _, d := range rest {
		if !d.schema.Equal(first.schema) {
			return nil, fmt.Errorf("%w: [%s] vs [%s]", ErrSchemaMismatch, first.schema, d.schema)
		}

		total += d.Len()
	}

	rows := make([]Row, 0, total)
	rows = append(rows, first.rows...)

	for _, d := range rest {
		rows = append(rows, d.rows...)
	}

	return &Dataset{schema: first.schema, rows: rows}, nil
}
