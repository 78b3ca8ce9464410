package transform

import (
	"context"
	"fmt"

	"github.com/ethpandaops/medallion/pkg/table"
)

// Explode emits one row per element of an array<string> column, writing the
// element to column As. With Outer set, a NULL or empty array yields a single
// row with As = NULL instead of no rows.
type Explode struct {
	Column string
	As     string
	Outer  bool
}

// Name implements Step
func (e Explode) Name() string {
	if e.Outer {
		return fmt.Sprintf("explode_outer(%s as %s)", e.Column, e.As)
	}

	return fmt.Sprintf("explode(%s as %s)", e.Column, e.As)
}

// Schema implements Step
func (e Explode) Schema(in table.Schema) (table.Schema, error) {
	f, ok := in.Field(e.Column)
	if !ok {
		return nil, fmt.Errorf("%w: %s", table.ErrUnknownColumn, e.Column)
	}

	if f.Type != table.TypeStringArray {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotArrayColumn, e.Column, f.Type)
	}

	if in.Index(e.As) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnExists, e.As)
	}

	out := append(table.Schema(nil), in...)

	return append(out, table.Field{Name: e.As, Type: table.TypeString}), nil
}

// Apply implements Step
func (e Explode) Apply(_ context.Context, in *table.Dataset) (*table.Dataset, error) {
	out, err := e.Schema(in.Schema())
	if err != nil {
		return nil, err
	}

	pos := in.Schema().Index(e.Column)
	rows := make([]table.Row, 0, in.Len())

	emit := func(row table.Row, v any) {
		next := append(make(table.Row, 0, len(out)), row...)
		rows = append(rows, append(next, v))
	}

	for _, row := range in.Rows() {
		arr, _ := row[pos].([]string)
		if len(arr) == 0 {
			if e.Outer {
				emit(row, nil)
			}

			continue
		}

		for _, v := range arr {
			emit(row, v)
		}
	}

	return table.New(out, rows)
}
