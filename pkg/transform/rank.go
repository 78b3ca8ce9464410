package transform

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ethpandaops/medallion/pkg/table"
)

// SortKey orders by one column. Ascending puts NULL first and descending
// puts NULL last; NullsLast forces NULL last in both directions.
type SortKey struct {
	Column    string
	Desc      bool
	NullsLast bool
}

func (k SortKey) String() string {
	s := k.Column
	if k.Desc {
		s += " desc"
	}

	if k.NullsLast {
		s += " nulls last"
	}

	return s
}

type resolvedKey struct {
	SortKey
	pos int
}

func resolveKeys(schema table.Schema, keys []SortKey) ([]resolvedKey, error) {
	out := make([]resolvedKey, len(keys))
	for i, k := range keys {
		pos := schema.Index(k.Column)
		if pos < 0 {
			return nil, fmt.Errorf("%w: %s", table.ErrUnknownColumn, k.Column)
		}

		out[i] = resolvedKey{SortKey: k, pos: pos}
	}

	return out, nil
}

func compareRows(a, b table.Row, keys []resolvedKey) int {
	for _, k := range keys {
		av, bv := a[k.pos], b[k.pos]

		if k.NullsLast && (av == nil) != (bv == nil) {
			if av == nil {
				return 1
			}

			return -1
		}

		c := table.Compare(av, bv)
		if k.Desc {
			c = -c
		}

		if c != 0 {
			return c
		}
	}

	return 0
}

func sortKeysString(keys []SortKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}

	return strings.Join(parts, ", ")
}

// Sort orders rows by the keys. The sort is stable.
type Sort struct {
	Keys []SortKey
}

// Name implements Step
func (s Sort) Name() string {
	return "order by " + sortKeysString(s.Keys)
}

// Schema implements Step
func (s Sort) Schema(in table.Schema) (table.Schema, error) {
	if _, err := resolveKeys(in, s.Keys); err != nil {
		return nil, err
	}

	return in, nil
}

// Apply implements Step
func (s Sort) Apply(_ context.Context, in *table.Dataset) (*table.Dataset, error) {
	keys, err := resolveKeys(in.Schema(), s.Keys)
	if err != nil {
		return nil, err
	}

	rows := slices.Clone(in.Rows())
	slices.SortStableFunc(rows, func(a, b table.Row) int {
		return compareRows(a, b, keys)
	})

	return table.New(in.Schema(), rows)
}

// RowNumber adds a 1-based int column As numbering rows within each
// partition in OrderBy order. Numbers are unique and gapless per partition.
// Rows keep their input order.
type RowNumber struct {
	PartitionBy []string
	OrderBy     []SortKey
	As          string
}

// Name implements Step
func (r RowNumber) Name() string {
	return fmt.Sprintf("row_number() over (partition by %s order by %s) as %s",
		strings.Join(r.PartitionBy, ", "), sortKeysString(r.OrderBy), r.As)
}

// Schema implements Step
func (r RowNumber) Schema(in table.Schema) (table.Schema, error) {
	if _, err := in.Indexes(r.PartitionBy...); err != nil {
		return nil, err
	}

	if _, err := resolveKeys(in, r.OrderBy); err != nil {
		return nil, err
	}

	if in.Index(r.As) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnExists, r.As)
	}

	out := append(table.Schema(nil), in...)

	return append(out, table.Field{Name: r.As, Type: table.TypeInt}), nil
}

// Apply implements Step
func (r RowNumber) Apply(_ context.Context, in *table.Dataset) (*table.Dataset, error) {
	out, err := r.Schema(in.Schema())
	if err != nil {
		return nil, err
	}

	parts, _ := in.Schema().Indexes(r.PartitionBy...)
	keys, _ := resolveKeys(in.Schema(), r.OrderBy)

	partitions := make(map[string][]int)

	var buf []byte

	for i, row := range in.Rows() {
		buf = rowKey(buf, row, parts)
		partitions[string(buf)] = append(partitions[string(buf)], i)
	}

	numbers := make([]int32, in.Len())
	src := in.Rows()

	for _, members := range partitions {
		slices.SortStableFunc(members, func(a, b int) int {
			return compareRows(src[a], src[b], keys)
		})

		for n, i := range members {
			numbers[i] = int32(n + 1) //nolint:gosec // partition sizes fit in int32
		}
	}

	rows := make([]table.Row, in.Len())
	for i, row := range src {
		next := append(make(table.Row, 0, len(out)), row...)
		rows[i] = append(next, numbers[i])
	}

	return table.New(out, rows)
}
