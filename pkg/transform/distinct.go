package transform

import (
	"context"

	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/zeebo/xxh3"
)

// Distinct removes rows that are identical across every column, keeping the
// first occurrence. Rows are fingerprinted with 128-bit xxh3 over their
// type-tagged encoding.
type Distinct struct{}

// Name implements Step
func (Distinct) Name() string {
	return "distinct"
}

// Schema implements Step
func (Distinct) Schema(in table.Schema) (table.Schema, error) {
	return in, nil
}

// Apply implements Step
func (Distinct) Apply(_ context.Context, in *table.Dataset) (*table.Dataset, error) {
	all := make([]int, len(in.Schema()))
	for i := range all {
		all[i] = i
	}

	seen := make(map[xxh3.Uint128]struct{}, in.Len())
	rows := make([]table.Row, 0, in.Len())

	var buf []byte

	for _, row := range in.Rows() {
		buf = rowKey(buf, row, all)
		h := xxh3.Hash128(buf)

		if _, dup := seen[h]; dup {
			continue
		}

		seen[h] = struct{}{}
		rows = append(rows, row)
	}

	return table.New(in.Schema(), rows)
}
