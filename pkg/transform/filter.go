package transform

import (
	"context"
	"fmt"

	"github.com/ethpandaops/medallion/pkg/table"
)

// Predicate decides whether a row is kept from the value of the filtered column
type Predicate func(v any) bool

// Filter keeps rows whose Column value matches a predicate
type Filter struct {
	Label  string
	Column string
	Keep   Predicate
}

// Name implements Step
func (f Filter) Name() string {
	return fmt.Sprintf("filter(%s)", f.Label)
}

// Schema implements Step
func (f Filter) Schema(in table.Schema) (table.Schema, error) {
	if _, err := in.Indexes(f.Column); err != nil {
		return nil, err
	}

	return in, nil
}

// Apply implements Step
func (f Filter) Apply(_ context.Context, in *table.Dataset) (*table.Dataset, error) {
	idx, err := in.Schema().Indexes(f.Column)
	if err != nil {
		return nil, err
	}

	pos := idx[0]

	rows := make([]table.Row, 0, in.Len())
	for _, row := range in.Rows() {
		if f.Keep(row[pos]) {
			rows = append(rows, row)
		}
	}

	return table.New(in.Schema(), rows)
}

// AtLeast keeps rows whose long or int column is >= min. NULL never matches.
func AtLeast(column string, minimum int64) Filter {
	return Filter{
		Label:  fmt.Sprintf("%s >= %d", column, minimum),
		Column: column,
		Keep: func(v any) bool {
			n, ok := table.Cast(v, table.TypeLong)
			if !ok || n == nil {
				return false
			}

			return n.(int64) >= minimum
		},
	}
}

// AtMost keeps rows whose long or int column is <= max. NULL never matches.
func AtMost(column string, maximum int64) Filter {
	return Filter{
		Label:  fmt.Sprintf("%s <= %d", column, maximum),
		Column: column,
		Keep: func(v any) bool {
			n, ok := table.Cast(v, table.TypeLong)
			if !ok || n == nil {
				return false
			}

			return n.(int64) <= maximum
		},
	}
}

// NotNull keeps rows whose column is not NULL
func NotNull(column string) Filter {
	return Filter{
		Label:  column + " is not null",
		Column: column,
		Keep:   func(v any) bool { return v != nil },
	}
}
