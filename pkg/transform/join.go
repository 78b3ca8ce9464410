package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethpandaops/medallion/pkg/table"
)

// JoinType selects join semantics
type JoinType string

// Join types
const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
)

// Join joins the input (left) with Right on equal values of the On columns.
// Output columns are the keys, then the remaining left columns, then the
// remaining right columns. NULL keys never match. A left join keeps
// unmatched left rows with NULL right columns.
type Join struct {
	Right *table.Dataset
	On    []string
	Type  JoinType
}

// Name implements Step
func (j Join) Name() string {
	return fmt.Sprintf("%s join on %s", j.Type, strings.Join(j.On, ","))
}

type joinLayout struct {
	out       table.Schema
	leftKeys  []int
	rightKeys []int
	leftRest  []int
	rightRest []int
}

func (j Join) layout(left table.Schema) (*joinLayout, error) {
	if j.Type != JoinInner && j.Type != JoinLeft {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJoin, j.Type)
	}

	right := j.Right.Schema()

	leftKeys, err := left.Indexes(j.On...)
	if err != nil {
		return nil, fmt.Errorf("left side: %w", err)
	}

	rightKeys, err := right.Indexes(j.On...)
	if err != nil {
		return nil, fmt.Errorf("right side: %w", err)
	}

	l := &joinLayout{leftKeys: leftKeys, rightKeys: rightKeys}

	isKey := make(map[string]struct{}, len(j.On))
	for i, name := range j.On {
		if left[leftKeys[i]].Type != right[rightKeys[i]].Type {
			return nil, fmt.Errorf("%w: %s (%s vs %s)", ErrJoinKeyMismatch, name, left[leftKeys[i]].Type, right[rightKeys[i]].Type)
		}

		isKey[name] = struct{}{}
		l.out = append(l.out, left[leftKeys[i]])
	}

	for i, f := range left {
		if _, ok := isKey[f.Name]; !ok {
			l.leftRest = append(l.leftRest, i)
			l.out = append(l.out, f)
		}
	}

	for i, f := range right {
		if _, ok := isKey[f.Name]; !ok {
			l.rightRest = append(l.rightRest, i)
			l.out = append(l.out, f)
		}
	}

	out, err := table.NewSchema(l.out...)
	if err != nil {
		return nil, err
	}

	l.out = out

	return l, nil
}

// Schema implements Step
func (j Join) Schema(in table.Schema) (table.Schema, error) {
	l, err := j.layout(in)
	if err != nil {
		return nil, err
	}

	return l.out, nil
}

// Apply implements Step
func (j Join) Apply(_ context.Context, in *table.Dataset) (*table.Dataset, error) {
	l, err := j.layout(in.Schema())
	if err != nil {
		return nil, err
	}

	index := make(map[string][]table.Row, j.Right.Len())

	var buf []byte

	for _, row := range j.Right.Rows() {
		if hasNull(row, l.rightKeys) {
			continue
		}

		buf = rowKey(buf, row, l.rightKeys)
		index[string(buf)] = append(index[string(buf)], row)
	}

	rows := make([]table.Row, 0, in.Len())

	for _, left := range in.Rows() {
		var matches []table.Row
		if !hasNull(left, l.leftKeys) {
			buf = rowKey(buf, left, l.leftKeys)
			matches = index[string(buf)]
		}

		if len(matches) == 0 {
			if j.Type == JoinLeft {
				rows = append(rows, l.combine(left, nil))
			}

			continue
		}

		for _, right := range matches {
			rows = append(rows, l.combine(left, right))
		}
	}

	return table.New(l.out, rows)
}

func (l *joinLayout) combine(left, right table.Row) table.Row {
	row := make(table.Row, 0, len(l.out))
	for _, i := range l.leftKeys {
		row = append(row, left[i])
	}

	for _, i := range l.leftRest {
		row = append(row, left[i])
	}

	for _, i := range l.rightRest {
		if right == nil {
			row = append(row, nil)
			continue
		}

		row = append(row, right[i])
	}

	return row
}

func hasNull(row table.Row, idx []int) bool {
	for _, i := range idx {
		if row[i] == nil {
			return true
		}
	}

	return false
}
