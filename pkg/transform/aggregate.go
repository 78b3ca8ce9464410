package transform

import (
	"context"
	"fmt"

	"github.com/ethpandaops/medallion/pkg/table"
)

// AggFunc names an aggregate function
type AggFunc string

// Aggregate functions
const (
	// AggCount counts rows; with a column it counts non-NULL values
	AggCount AggFunc = "count"
	// AggAvg is the arithmetic mean of non-NULL values, NULL when there are none
	AggAvg AggFunc = "avg"
	// AggSum is the sum of non-NULL values, NULL when there are none
	AggSum AggFunc = "sum"
)

// Agg is one aggregate output column
type Agg struct {
	Func   AggFunc
	Column string // empty or "*" means every row (count only)
	As     string
}

func (a Agg) allRows() bool {
	return a.Column == "" || a.Column == "*"
}

// Aggregate groups rows by the GroupBy columns and computes Aggs per group.
// NULL is a group key like any other. Groups appear in first-seen order.
type Aggregate struct {
	GroupBy []string
	Aggs    []Agg
}

// Name implements Step
func (a Aggregate) Name() string {
	return fmt.Sprintf("aggregate by %v", a.GroupBy)
}

// Schema implements Step
func (a Aggregate) Schema(in table.Schema) (table.Schema, error) {
	idx, err := in.Indexes(a.GroupBy...)
	if err != nil {
		return nil, err
	}

	out := make(table.Schema, 0, len(idx)+len(a.Aggs))
	for _, i := range idx {
		out = append(out, in[i])
	}

	for _, agg := range a.Aggs {
		if !agg.allRows() && in.Index(agg.Column) < 0 {
			return nil, fmt.Errorf("%w: %s", table.ErrUnknownColumn, agg.Column)
		}

		switch agg.Func {
		case AggCount:
			out = append(out, table.Field{Name: agg.As, Type: table.TypeLong})
		case AggAvg, AggSum:
			if agg.allRows() {
				return nil, fmt.Errorf("%w: %s needs a column", ErrUnknownAgg, agg.Func)
			}

			out = append(out, table.Field{Name: agg.As, Type: table.TypeDouble})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownAgg, agg.Func)
		}
	}

	return table.NewSchema(out...)
}

type accumulator struct {
	count   int64
	nonNull int64
	sum     float64
	seen    int64
}

// Apply implements Step
func (a Aggregate) Apply(_ context.Context, in *table.Dataset) (*table.Dataset, error) {
	out, err := a.Schema(in.Schema())
	if err != nil {
		return nil, err
	}

	keys, _ := in.Schema().Indexes(a.GroupBy...)

	cols := make([]int, len(a.Aggs))
	for i, agg := range a.Aggs {
		cols[i] = -1
		if !agg.allRows() {
			cols[i] = in.Schema().Index(agg.Column)
		}
	}

	type group struct {
		key  table.Row
		accs []accumulator
	}

	groups := make(map[string]*group)
	order := make([]*group, 0)

	var buf []byte

	for _, row := range in.Rows() {
		buf = rowKey(buf, row, keys)

		g, ok := groups[string(buf)]
		if !ok {
			key := make(table.Row, len(keys))
			for i, k := range keys {
				key[i] = row[k]
			}

			g = &group{key: key, accs: make([]accumulator, len(a.Aggs))}
			groups[string(buf)] = g
			order = append(order, g)
		}

		for i := range a.Aggs {
			acc := &g.accs[i]
			acc.count++

			if cols[i] < 0 || row[cols[i]] == nil {
				continue
			}

			acc.nonNull++

			if a.Aggs[i].Func == AggCount {
				continue
			}

			v, ok := table.Cast(row[cols[i]], table.TypeDouble)
			if !ok {
				continue
			}

			acc.seen++
			acc.sum += v.(float64)
		}
	}

	rows := make([]table.Row, 0, len(order))

	for _, g := range order {
		row := append(make(table.Row, 0, len(out)), g.key...)

		for i, agg := range a.Aggs {
			acc := g.accs[i]

			switch agg.Func {
			case AggCount:
				if agg.allRows() {
					row = append(row, acc.count)
				} else {
					row = append(row, acc.nonNull)
				}
			case AggAvg:
				if acc.seen == 0 {
					row = append(row, nil)
				} else {
					row = append(row, acc.sum/float64(acc.seen))
				}
			case AggSum:
				if acc.seen == 0 {
					row = append(row, nil)
				} else {
					row = append(row, acc.sum)
				}
			}
		}

		rows = append(rows, row)
	}

	return table.New(out, rows)
}
