package transform

import (
	"context"
	"fmt"

	"github.com/ethpandaops/medallion/pkg/table"
)

// Select keeps the named columns in the given order
type Select struct {
	Columns []string
}

// Name implements Step
func (s Select) Name() string {
	return fmt.Sprintf("select%v", s.Columns)
}

// Schema implements Step
func (s Select) Schema(in table.Schema) (table.Schema, error) {
	idx, err := in.Indexes(s.Columns...)
	if err != nil {
		return nil, err
	}

	out := make(table.Schema, len(idx))
	for i, pos := range idx {
		out[i] = in[pos]
	}

	return table.NewSchema(out...)
}

// Apply implements Step
func (s Select) Apply(_ context.Context, in *table.Dataset) (*table.Dataset, error) {
	out, err := s.Schema(in.Schema())
	if err != nil {
		return nil, err
	}

	idx, _ := in.Schema().Indexes(s.Columns...)
	rows := make([]table.Row, in.Len())

	for r, row := range in.Rows() {
		next := make(table.Row, len(idx))
		for i, pos := range idx {
			next[i] = row[pos]
		}

		rows[r] = next
	}

	return table.New(out, rows)
}

// Drop removes the named columns; unknown names are ignored
type Drop struct {
	Columns []string
}

// Name implements Step
func (d Drop) Name() string {
	return fmt.Sprintf("drop%v", d.Columns)
}

func (d Drop) keep(in table.Schema) []string {
	dropped := make(map[string]struct{}, len(d.Columns))
	for _, c := range d.Columns {
		dropped[c] = struct{}{}
	}

	keep := make([]string, 0, len(in))
	for _, f := range in {
		if _, ok := dropped[f.Name]; !ok {
			keep = append(keep, f.Name)
		}
	}

	return keep
}

// Schema implements Step
func (d Drop) Schema(in table.Schema) (table.Schema, error) {
	return Select{Columns: d.keep(in)}.Schema(in)
}

// Apply implements Step
func (d Drop) Apply(ctx context.Context, in *table.Dataset) (*table.Dataset, error) {
	return Select{Columns: d.keep(in.Schema())}.Apply(ctx, in)
}

// Cast converts a column to another type. Values that cannot be converted
// become NULL; the row is kept.
type Cast struct {
	Column string
	To     table.Type
}

// Name implements Step
func (c Cast) Name() string {
	return fmt.Sprintf("cast(%s as %s)", c.Column, c.To)
}

// Schema implements Step
func (c Cast) Schema(in table.Schema) (table.Schema, error) {
	pos := in.Index(c.Column)
	if pos < 0 {
		return nil, fmt.Errorf("%w: %s", table.ErrUnknownColumn, c.Column)
	}

	if _, err := table.ParseType(string(c.To)); err != nil {
		return nil, err
	}

	out := append(table.Schema(nil), in...)
	out[pos].Type = c.To

	return out, nil
}

// Apply implements Step
func (c Cast) Apply(_ context.Context, in *table.Dataset) (*table.Dataset, error) {
	out, err := c.Schema(in.Schema())
	if err != nil {
		return nil, err
	}

	pos := in.Schema().Index(c.Column)
	rows := make([]table.Row, in.Len())

	for r, row := range in.Rows() {
		next := append(table.Row(nil), row...)
		v, ok := table.Cast(row[pos], c.To)
		if !ok {
			v = nil
		}

		next[pos] = v
		rows[r] = next
	}

	return table.New(out, rows)
}

// DeriveFunc computes a column value from a row of the input schema
type DeriveFunc func(schema table.Schema, row table.Row) (any, error)

// Derive adds a column, or replaces it in place when it already exists
type Derive struct {
	Column string
	Type   table.Type
	Fn     DeriveFunc
}

// Name implements Step
func (d Derive) Name() string {
	return fmt.Sprintf("derive(%s %s)", d.Column, d.Type)
}

// Schema implements Step
func (d Derive) Schema(in table.Schema) (table.Schema, error) {
	if _, err := table.ParseType(string(d.Type)); err != nil {
		return nil, err
	}

	out := append(table.Schema(nil), in...)
	if pos := in.Index(d.Column); pos >= 0 {
		out[pos].Type = d.Type
		return out, nil
	}

	return append(out, table.Field{Name: d.Column, Type: d.Type}), nil
}

// Apply implements Step
func (d Derive) Apply(_ context.Context, in *table.Dataset) (*table.Dataset, error) {
	out, err := d.Schema(in.Schema())
	if err != nil {
		return nil, err
	}

	pos := in.Schema().Index(d.Column)
	rows := make([]table.Row, in.Len())

	for r, row := range in.Rows() {
		v, err := d.Fn(in.Schema(), row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r, err)
		}

		next := append(make(table.Row, 0, len(out)), row...)
		if pos >= 0 {
			next[pos] = v
		} else {
			next = append(next, v)
		}

		rows[r] = next
	}

	return table.New(out, rows)
}
