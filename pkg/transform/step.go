// Package transform provides named, schema-checked transformation steps over
// table.Dataset and an ordered pipeline that runs them.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethpandaops/medallion/pkg/table"
)

// Define static errors
var (
	ErrEmptyPipeline   = errors.New("pipeline has no steps")
	ErrColumnExists    = errors.New("column already exists")
	ErrNotArrayColumn  = errors.New("column is not array<string>")
	ErrJoinKeyMismatch = errors.New("join key types differ")
	ErrUnknownAgg      = errors.New("unknown aggregate function")
	ErrUnknownJoin     = errors.New("unknown join type")
)

// Step is one transformation. Schema describes the step contract: given an
// input schema it returns the output schema, or an error when the input does
// not satisfy the step. Apply never modifies its input.
type Step interface {
	Name() string
	Schema(in table.Schema) (table.Schema, error)
	Apply(ctx context.Context, in *table.Dataset) (*table.Dataset, error)
}

// Pipeline is an ordered list of steps
type Pipeline struct {
	name  string
	steps []Step
}

// NewPipeline creates a pipeline from steps, run in the given order
func NewPipeline(name string, steps ...Step) *Pipeline {
	return &Pipeline{name: name, steps: steps}
}

// Add appends a step
func (p *Pipeline) Add(s Step) *Pipeline {
	p.steps = append(p.steps, s)
	return p
}

// Name returns the pipeline name
func (p *Pipeline) Name() string {
	return p.name
}

// Steps returns the steps in execution order
func (p *Pipeline) Steps() []Step {
	return p.steps
}

// Schema folds the step contracts over an input schema
func (p *Pipeline) Schema(in table.Schema) (table.Schema, error) {
	cur := in
	for i, s := range p.steps {
		out, err := s.Schema(cur)
		if err != nil {
			return nil, fmt.Errorf("%s step %d (%s): %w", p.name, i+1, s.Name(), err)
		}

		cur = out
	}

	return cur, nil
}

// Run applies every step in order. The context is checked between steps.
func (p *Pipeline) Run(ctx context.Context, in *table.Dataset) (*table.Dataset, error) {
	if len(p.steps) == 0 {
		return nil, ErrEmptyPipeline
	}

	cur := in
	for i, s := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, err := s.Apply(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("%s step %d (%s): %w", p.name, i+1, s.Name(), err)
		}

		cur = out
	}

	return cur, nil
}

// rowKey encodes the values at idx into buf, returning the grown buffer
func rowKey(buf []byte, row table.Row, idx []int) []byte {
	buf = buf[:0]
	for _, i := range idx {
		buf = table.AppendKey(buf, row[i])
	}

	return buf
}
