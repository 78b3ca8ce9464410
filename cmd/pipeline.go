package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ethpandaops/medallion/pkg/admin"
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/pipeline"
	"github.com/ethpandaops/medallion/pkg/tablekind"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a raw delimited table into bronze",
	Long: `Reads <raw_base_path>/<table_name> (a file or a directory of files) as
delimited text typed by the table's raw schema, stamps every row with
ingest_ts and ingest_date and writes it to the bronze layer. Full runs
replace the bronze table, incremental runs append to it.`,
	Example: `  medallion ingest --table_name ratings --raw_base_path /data/raw --bronze_base_path /data/bronze
  medallion ingest --table_name movies --run_mode incremental --delimiter "::"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runKindStage(cmd, pipeline.IngestStage)
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var standardizeCmd = &cobra.Command{
	Use:   "standardize",
	Short: "Standardize a bronze table into silver",
	Long: `Casts the bronze table to its silver schema, derives rating_ts from the
rating timestamp, trims movie titles and genres, splits genres into
genres_arr and removes duplicate rows, replacing the silver table.`,
	Example: `  medallion standardize --table_name ratings --bronze_base_path /data/bronze --silver_base_path /data/silver`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runKindStage(cmd, pipeline.StandardizeStage)
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var goldCmd = &cobra.Command{
	Use:     "gold",
	Short:   "Aggregate silver ratings and movies into the gold summaries",
	Example: `  medallion gold --silver_base_path /data/silver --gold_base_path /data/gold`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runStage(cmd, pipeline.GoldStage)
	},
}

//nolint:gochecknoglobals // Cobra commands are typically global
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage in dependency order",
	Long: `Runs ingest, standardize and gold for every table in dependency order.
With --target only the named stages and their dependencies run.`,
	Example: `  medallion run --store memory --raw_base_path /data/raw
  medallion run --target standardize/ratings`,
	RunE: runPipeline,
}

func init() {
	for _, c := range []*cobra.Command{ingestCmd, standardizeCmd, goldCmd, runCmd} {
		addParamFlags(c)
		c.Flags().String("store", "", "override store.type (local, clickhouse, memory)")
		rootCmd.AddCommand(c)
	}

	runCmd.Flags().StringSlice("target", nil, "stage IDs to run with their dependencies (default: all)")
}

func addParamFlags(c *cobra.Command) {
	f := c.Flags()
	f.String(pipeline.ParamRawBasePath, "", "raw zone base path (default paths.raw)")
	f.String(pipeline.ParamBronzeBasePath, "", "bronze base path (default paths.bronze)")
	f.String(pipeline.ParamSilverBasePath, "", "silver base path (default paths.silver)")
	f.String(pipeline.ParamGoldBasePath, "", "gold base path (default paths.gold)")
	f.String(pipeline.ParamRunMode, "", "full or incremental (default ingest.mode)")
	f.String(pipeline.ParamTableName, "", "ratings or movies")
	f.String(pipeline.ParamDelimiter, "", "raw field delimiter (default ingest.delimiter)")
}

func paramsFromFlags(cmd *cobra.Command) pipeline.Params {
	get := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}

	return pipeline.Params{
		RawBasePath:    get(pipeline.ParamRawBasePath),
		BronzeBasePath: get(pipeline.ParamBronzeBasePath),
		SilverBasePath: get(pipeline.ParamSilverBasePath),
		GoldBasePath:   get(pipeline.ParamGoldBasePath),
		RunMode:        get(pipeline.ParamRunMode),
		TableName:      get(pipeline.ParamTableName),
		Delimiter:      get(pipeline.ParamDelimiter),
	}
}

// openRunner opens the engine and builds a runner from the config file.
// The caller closes the engine.
func openRunner(ctx context.Context, cmd *cobra.Command) (*engine.Engine, *pipeline.Runner, error) {
	config, err := loadCommandConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	eng, err := engine.Open(ctx, logger, &config.Engine)
	if err != nil {
		return nil, nil, err
	}

	runner, err := pipeline.NewRunner(eng, &config.Pipeline)
	if err != nil {
		_ = eng.Close()
		return nil, nil, err
	}

	return eng, runner, nil
}

func closeEngine(eng *engine.Engine) {
	if err := eng.Close(); err != nil {
		logger.WithError(err).Error("Failed to close engine")
	}
}

// runKindStage runs the ingest or standardize stage of --table_name
func runKindStage(cmd *cobra.Command, stageID func(k tablekind.Kind) string) error {
	name := paramsFromFlags(cmd).TableName
	if name == "" {
		return fmt.Errorf("%w: --%s", pipeline.ErrMissingParam, pipeline.ParamTableName)
	}

	kind, err := tablekind.Parse(name)
	if err != nil {
		return err
	}

	return runStage(cmd, stageID(kind))
}

func runStage(cmd *cobra.Command, id string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	ctx := cmd.Context()

	eng, runner, err := openRunner(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	run, err := runner.RunStage(ctx, id, paramsFromFlags(cmd))
	if run != nil {
		printRuns(cmd.OutOrStdout(), []admin.Run{*run})
	}

	return err
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	// Silence usage on error
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	ctx := cmd.Context()

	eng, runner, err := openRunner(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	targets, _ := cmd.Flags().GetStringSlice("target")

	runs, err := runner.RunPipeline(ctx, paramsFromFlags(cmd), targets...)
	if len(runs) > 0 {
		printRuns(cmd.OutOrStdout(), runs)
	}

	return err
}

func printRuns(out io.Writer, runs []admin.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN ID\tSTAGE\tTABLE\tMODE\tREAD\tWRITTEN\tREJECTED\tDUPLICATES\tSTATUS\tDURATION")

	for i := range runs {
		run := &runs[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			run.ID, run.Stage, run.Table, run.Mode,
			run.RowsRead, run.RowsWritten, run.RowsRejected, run.DuplicatesRemoved,
			run.Status, run.Duration().Round(time.Millisecond))
	}

	_ = w.Flush()
}
