package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/ethpandaops/medallion/pkg/dependencies"
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/pipeline"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Show the stage dependency graph",
	Long:  `Lists the stages by dependency level, or prints the graph in DOT format for graphviz.`,
	RunE:  runStages,
}

func init() {
	rootCmd.AddCommand(stagesCmd)

	stagesCmd.Flags().Bool("dot", false, "Output in DOT format for graphviz")
}

func runStages(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	config, err := loadCommandConfig(cmd)
	if err != nil {
		return err
	}

	// The graph does not touch storage
	runner, err := pipeline.NewRunner(engine.NewInMemory(logger), &config.Pipeline)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	graph := runner.Graph()

	if dotFlag, _ := cmd.Flags().GetBool("dot"); dotFlag {
		_, _ = fmt.Fprintln(out, graph.GenerateDOTFormat())
		return nil
	}

	dagInfo := graph.GetDAGInfo()

	_, _ = fmt.Fprintln(out, "Dependency Graph:")
	_, _ = fmt.Fprintln(out, "=================")
	printDAGLevels(out, runner, dagInfo)

	_, _ = fmt.Fprintln(out, "\nStatistics:")
	_, _ = fmt.Fprintln(out, "===========")
	_, _ = fmt.Fprintf(out, "Independent chains: %d\n", len(dagInfo.RootNodes))
	_, _ = fmt.Fprintf(out, "Total stages: %d\n", dagInfo.TotalNodes)
	_, _ = fmt.Fprintf(out, "Max depth: %d\n", dagInfo.MaxLevel)

	return nil
}

func printDAGLevels(out io.Writer, runner *pipeline.Runner, dagInfo *dependencies.DAGInfo) {
	for level := 0; level <= dagInfo.MaxLevel; level++ {
		ids, exists := dagInfo.Levels[level]
		if !exists {
			continue
		}

		_, _ = fmt.Fprintf(out, "\nLevel %d:\n", level)

		for _, id := range ids {
			st, err := runner.Stage(id)
			if err != nil {
				continue
			}

			_, _ = fmt.Fprintf(out, "  • %s (%s → %s)", id, st.Layer, st.Table())

			if deps := runner.Graph().GetDependencies(id); len(deps) > 0 {
				_, _ = fmt.Fprintf(out, "\n    ← depends on: %s", strings.Join(deps, ", "))
			}

			if dependents := dagInfo.Dependents[id]; len(dependents) > 0 {
				_, _ = fmt.Fprintf(out, "\n    → used by: %s", strings.Join(dependents, ", "))
			}

			_, _ = fmt.Fprintln(out)
		}
	}
}
