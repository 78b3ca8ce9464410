package pipeline

import (
	"github.com/ethpandaops/medallion/pkg/dependencies"
	"github.com/ethpandaops/medallion/pkg/tablekind"
)

// Medallion layers
const (
	LayerRaw    = "raw"
	LayerBronze = "bronze"
	LayerSilver = "silver"
	LayerGold   = "gold"
)

// GoldStage is the ID of the aggregation stage
const GoldStage = "gold"

// Stage is one node of the pipeline
type Stage struct {
	ID           string         `json:"id"`
	Layer        string         `json:"layer"`
	Kind         tablekind.Kind `json:"-"`
	Dependencies []string       `json:"dependencies"`
	// Priority orders stages of the same level, lower first
	Priority int `json:"-"`
}

// Table is the table the stage writes. It doubles as the write lock key.
func (s Stage) Table() string {
	switch s.Layer {
	case LayerBronze:
		return tablekind.BronzeName(s.Kind)
	case LayerSilver:
		return tablekind.SilverName(s.Kind)
	default:
		return GoldStage
	}
}

// IngestStage is the ID of a kind's ingestion stage
func IngestStage(k tablekind.Kind) string {
	return "ingest/" + k.Name()
}

// StandardizeStage is the ID of a kind's standardization stage
func StandardizeStage(k tablekind.Kind) string {
	return "standardize/" + k.Name()
}

// DefaultStages returns ingest and standardize for every kind followed by
// gold, which depends on every silver table
func DefaultStages() []Stage {
	kinds := tablekind.All()
	stages := make([]Stage, 0, 2*len(kinds)+1)
	goldDeps := make([]string, 0, len(kinds))

	for i, k := range kinds {
		stages = append(stages,
			Stage{ID: IngestStage(k), Layer: LayerBronze, Kind: k, Priority: i},
			Stage{ID: StandardizeStage(k), Layer: LayerSilver, Kind: k, Priority: i, Dependencies: []string{IngestStage(k)}},
		)

		goldDeps = append(goldDeps, StandardizeStage(k))
	}

	return append(stages, Stage{ID: GoldStage, Layer: LayerGold, Dependencies: goldDeps})
}

func buildGraph(stages []Stage) (*dependencies.DependencyGraph, error) {
	nodes := make([]dependencies.Node, 0, len(stages))
	for _, s := range stages {
		nodes = append(nodes, dependencies.Node{
			ID:           s.ID,
			Dependencies: s.Dependencies,
			Group:        s.Layer,
		})
	}

	g := dependencies.NewDependencyGraph()
	if err := g.BuildGraph(nodes); err != nil {
		return nil, err
	}

	return g, nil
}
