package dependencies

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDependencyGraph_BuildGraph(t *testing.T) {
	tests := []struct {
		name          string
		nodes         []Node
		expectedError error
		wantAnyError  bool
	}{
		{
			name: "simple linear dependency chain",
			nodes: []Node{
				{ID: "ingest"},
				{ID: "standardize", Dependencies: []string{"ingest"}},
				{ID: "gold", Dependencies: []string{"standardize"}},
			},
		},
		{
			name: "diamond dependency pattern",
			nodes: []Node{
				{ID: "root"},
				{ID: "left", Dependencies: []string{"root"}},
				{ID: "right", Dependencies: []string{"root"}},
				{ID: "final", Dependencies: []string{"left", "right"}},
			},
		},
		{
			name: "cyclic dependency should fail",
			nodes: []Node{
				{ID: "a", Dependencies: []string{"b"}},
				{ID: "b", Dependencies: []string{"a"}},
			},
			wantAnyError: true,
		},
		{
			name: "non-existent dependency should fail",
			nodes: []Node{
				{ID: "a", Dependencies: []string{"missing"}},
			},
			expectedError: ErrNonExistentDependency,
		},
		{
			name: "duplicate node should fail",
			nodes: []Node{
				{ID: "a"},
				{ID: "a"},
			},
			expectedError: ErrDuplicateNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDependencyGraph().BuildGraph(tt.nodes)

			switch {
			case tt.expectedError != nil:
				require.ErrorIs(t, err, tt.expectedError)
			case tt.wantAnyError:
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func medallionGraph(t *testing.T) *DependencyGraph {
	t.Helper()

	g := NewDependencyGraph()
	require.NoError(t, g.BuildGraph([]Node{
		{ID: "ingest/ratings", Group: "bronze"},
		{ID: "ingest/movies", Group: "bronze"},
		{ID: "standardize/ratings", Group: "silver", Dependencies: []string{"ingest/ratings"}},
		{ID: "standardize/movies", Group: "silver", Dependencies: []string{"ingest/movies"}},
		{ID: "gold", Group: "gold", Dependencies: []string{"standardize/ratings", "standardize/movies"}},
	}))

	return g
}

func TestDependencyGraph_Queries(t *testing.T) {
	g := medallionGraph(t)

	assert.Equal(t, []string{"standardize/movies", "standardize/ratings"}, g.GetDependencies("gold"))
	assert.Equal(t, []string{"gold"}, g.GetDependents("standardize/ratings"))
	assert.Equal(t, []string{"gold", "standardize/ratings"}, g.GetAllDependents("ingest/ratings"))
	assert.Len(t, g.GetAllDependencies("gold"), 4)
	assert.True(t, g.IsPathBetween("ingest/movies", "gold"))
	assert.False(t, g.IsPathBetween("ingest/movies", "standardize/ratings"))
	assert.Nil(t, g.GetDependents("nope"))

	node, ok := g.GetNode("gold")
	require.True(t, ok)
	assert.Equal(t, "gold", node.Group)
}

func TestDependencyGraph_TopologicalOrder(t *testing.T) {
	g := medallionGraph(t)

	priority := map[string]int{"ingest/ratings": 0, "ingest/movies": 1, "standardize/ratings": 0, "standardize/movies": 1}

	assert.Equal(t, []string{
		"ingest/ratings",
		"ingest/movies",
		"standardize/ratings",
		"standardize/movies",
		"gold",
	}, g.TopologicalOrder(priority))

	sub, err := g.Subgraph([]string{"standardize/movies"}, priority)
	require.NoError(t, err)
	assert.Equal(t, []string{"ingest/movies", "standardize/movies"}, sub)

	_, err = g.Subgraph([]string{"nope"}, priority)
	require.ErrorIs(t, err, ErrUnknownNode)
}
