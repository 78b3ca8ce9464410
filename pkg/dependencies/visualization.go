package dependencies

import (
	"fmt"
	"sort"
	"strings"
)

// DAGInfo contains DAG visualization information
type DAGInfo struct {
	Levels     map[int][]string    `json:"levels"`
	MaxLevel   int                 `json:"max_level"`
	RootNodes  []string            `json:"root_nodes"`
	TotalNodes int                 `json:"total_nodes"`
	Dependents map[string][]string `json:"dependents"`
}

// GetDAGInfo returns DAG visualization information
func (d *DependencyGraph) GetDAGInfo() *DAGInfo {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	levels := d.calculateLevels()

	levelGroups := make(map[int][]string)
	maxLevel := 0

	for id, level := range levels {
		if level > maxLevel {
			maxLevel = level
		}

		levelGroups[level] = append(levelGroups[level], id)
	}

	for level := range levelGroups {
		sort.Strings(levelGroups[level])
	}

	dependents := make(map[string][]string, len(d.nodes))
	for id := range d.nodes {
		dependents[id] = d.findDependents(id)
	}

	return &DAGInfo{
		Levels:     levelGroups,
		MaxLevel:   maxLevel,
		RootNodes:  d.findRootNodes(),
		TotalNodes: len(d.nodes),
		Dependents: dependents,
	}
}

// calculateLevels calculates the dependency depth level for each node
func (d *DependencyGraph) calculateLevels() map[string]int {
	levels := make(map[string]int, len(d.nodes))

	for id := range d.nodes {
		levels[id] = 0
	}

	// Keep updating levels until stable
	changed := true
	for changed {
		changed = false

		for id, node := range d.nodes {
			maxDepLevel := -1

			for _, dep := range node.Dependencies {
				if depLevel, exists := levels[dep]; exists && depLevel > maxDepLevel {
					maxDepLevel = depLevel
				}
			}

			if maxDepLevel >= 0 && maxDepLevel+1 > levels[id] {
				levels[id] = maxDepLevel + 1
				changed = true
			}
		}
	}

	return levels
}

// findRootNodes finds all nodes with no dependencies
func (d *DependencyGraph) findRootNodes() []string {
	roots := []string{}

	for id, node := range d.nodes {
		if len(node.Dependencies) == 0 {
			roots = append(roots, id)
		}
	}

	sort.Strings(roots)

	return roots
}

// findDependents finds all nodes that directly depend on the given node
func (d *DependencyGraph) findDependents(id string) []string {
	dependents := []string{}

	for otherID, node := range d.nodes {
		for _, dep := range node.Dependencies {
			if dep == id {
				dependents = append(dependents, otherID)
				break
			}
		}
	}

	sort.Strings(dependents)

	return dependents
}

// GenerateDOTFormat generates a DOT format representation of the DAG.
// Nodes sharing a Group are clustered together.
func (d *DependencyGraph) GenerateDOTFormat() string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	ids := make([]string, 0, len(d.nodes))
	groups := make(map[string][]string)

	for id, node := range d.nodes {
		ids = append(ids, id)

		if node.Group != "" {
			groups[node.Group] = append(groups[node.Group], id)
		}
	}

	sort.Strings(ids)

	groupNames := make([]string, 0, len(groups))
	for g := range groups {
		groupNames = append(groupNames, g)
		sort.Strings(groups[g])
	}

	sort.Strings(groupNames)

	var sb strings.Builder
	sb.WriteString("digraph stages {\n")
	sb.WriteString("  rankdir=LR;\n")

	for _, g := range groupNames {
		fmt.Fprintf(&sb, "  subgraph \"cluster_%s\" {\n", g)
		fmt.Fprintf(&sb, "    label=\"%s\";\n", g)

		for _, id := range groups[g] {
			fmt.Fprintf(&sb, "    \"%s\";\n", id)
		}

		sb.WriteString("  }\n")
	}

	for _, id := range ids {
		node := d.nodes[id]
		if node.Group == "" {
			fmt.Fprintf(&sb, "  \"%s\";\n", id)
		}

		deps := append([]string(nil), node.Dependencies...)
		sort.Strings(deps)

		for _, dep := range deps {
			fmt.Fprintf(&sb, "  \"%s\" -> \"%s\";\n", dep, id)
		}
	}

	sb.WriteString("}")

	return sb.String()
}
