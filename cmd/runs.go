package cmd

import (
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded stage runs, newest first",
	Long: `Lists the run ledger. Runs are only shared between processes when
redis.url is configured; without it the ledger lives in-process.`,
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().Int("limit", 20, "maximum number of runs to list (0 for all)")
}

func runRuns(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	config, err := loadCommandConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	eng, err := engine.Open(ctx, logger, &config.Engine)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	limit, _ := cmd.Flags().GetInt("limit")

	runs, err := eng.Ledger.List(ctx, limit)
	if err != nil {
		return err
	}

	printRuns(cmd.OutOrStdout(), runs)

	return nil
}
