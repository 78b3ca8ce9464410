// Package dependencies manages the dependency graph between pipeline stages
package dependencies

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/heimdalr/dag"
)

var (
	// ErrNonExistentDependency is returned when a node depends on a non-existent node
	ErrNonExistentDependency = errors.New("node depends on non-existent node")
	// ErrDuplicateNode is returned when two nodes share an ID
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrUnknownNode is returned when a lookup names a node not in the graph
	ErrUnknownNode = errors.New("unknown node")
)

// Node is a vertex of the graph. Dependencies name the nodes that must
// complete before this one.
type Node struct {
	ID           string
	Dependencies []string
	// Group is a display hint used by the DOT output, e.g. the medallion layer
	Group string
}

// DependencyGraph manages the dependency graph for nodes
type DependencyGraph struct {
	dag   *dag.DAG
	nodes map[string]Node
	mutex sync.RWMutex
}

// NewDependencyGraph creates a new dependency graph
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		dag:   dag.NewDAG(),
		nodes: make(map[string]Node),
	}
}

// BuildGraph builds the dependency graph from nodes. A dependency on an
// unknown node or one that would create a cycle is an error.
func (d *DependencyGraph) BuildGraph(nodes []Node) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.dag = dag.NewDAG()
	d.nodes = make(map[string]Node, len(nodes))

	for i := range nodes {
		node := nodes[i]
		if _, exists := d.nodes[node.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
		}

		d.nodes[node.ID] = node

		if err := d.dag.AddVertexByID(node.ID, node.ID); err != nil {
			return fmt.Errorf("failed to add vertex %s: %w", node.ID, err)
		}
	}

	// Add edges (dependency → dependent)
	for i := range nodes {
		node := &nodes[i]

		for _, depID := range node.Dependencies {
			if _, exists := d.nodes[depID]; !exists {
				return fmt.Errorf("%w: %s depends on %s", ErrNonExistentDependency, node.ID, depID)
			}

			// AddEdge returns error if it would create a cycle
			if err := d.dag.AddEdge(depID, node.ID); err != nil {
				return fmt.Errorf("invalid dependency %s → %s: %w", depID, node.ID, err)
			}
		}
	}

	return nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for id := range m {
		keys = append(keys, id)
	}

	sort.Strings(keys)

	return keys
}

// GetDependents returns the direct dependents of a node
func (d *DependencyGraph) GetDependents(id string) []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	children, err := d.dag.GetChildren(id)
	if err != nil {
		return nil
	}

	return sortedKeys(children)
}

// GetDependencies returns the direct dependencies of a node
func (d *DependencyGraph) GetDependencies(id string) []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	parents, err := d.dag.GetParents(id)
	if err != nil {
		return nil
	}

	return sortedKeys(parents)
}

// GetAllDependents returns all dependents (recursive) of a node
func (d *DependencyGraph) GetAllDependents(id string) []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	descendants, err := d.dag.GetDescendants(id)
	if err != nil {
		return nil
	}

	return sortedKeys(descendants)
}

// GetAllDependencies returns all dependencies (recursive) of a node
func (d *DependencyGraph) GetAllDependencies(id string) []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	ancestors, err := d.dag.GetAncestors(id)
	if err != nil {
		return nil
	}

	return sortedKeys(ancestors)
}

// IsPathBetween checks if there's a path from one node to another
func (d *DependencyGraph) IsPathBetween(fromID, toID string) bool {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	descendants, err := d.dag.GetDescendants(fromID)
	if err != nil {
		return false
	}

	_, exists := descendants[toID]

	return exists
}

// GetNode returns a node by ID
func (d *DependencyGraph) GetNode(id string) (Node, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	node, exists := d.nodes[id]

	return node, exists
}

// GetAllNodeIDs returns all node IDs in the dependency graph
func (d *DependencyGraph) GetAllNodeIDs() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	ids := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// TopologicalOrder returns every node with each node after all of its
// dependencies. Nodes of the same level are ordered by the given priority
// (lower first), then by ID.
func (d *DependencyGraph) TopologicalOrder(priority map[string]int) []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	levels := d.calculateLevels()

	ids := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		a, b := ids[i], ids[j]
		if levels[a] != levels[b] {
			return levels[a] < levels[b]
		}

		if priority[a] != priority[b] {
			return priority[a] < priority[b]
		}

		return a < b
	})

	return ids
}

// Subgraph returns the given targets plus every node they depend on, in
// topological order
func (d *DependencyGraph) Subgraph(targets []string, priority map[string]int) ([]string, error) {
	include := make(map[string]struct{})

	for _, target := range targets {
		if _, ok := d.GetNode(target); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, target)
		}

		include[target] = struct{}{}
		for _, dep := range d.GetAllDependencies(target) {
			include[dep] = struct{}{}
		}
	}

	order := d.TopologicalOrder(priority)
	out := make([]string, 0, len(include))

	for _, id := range order {
		if _, ok := include[id]; ok {
			out = append(out, id)
		}
	}

	return out, nil
}
