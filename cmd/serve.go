package cmd

import (
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/pipeline"
	"github.com/ethpandaops/medallion/pkg/server"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra commands are typically global
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker, scheduler and API",
	Long: `Processes queued stage and pipeline runs, enqueues pipeline runs on the
configured cron schedule (leader only), and serves the API and metrics.
Requires redis.url.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	runner, err := pipeline.NewRunner(eng, &config.Pipeline)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(logger, &config.Server, eng, runner, config.Engine.Redis.Prefix)
	if err != nil {
		return err
	}

	logger.Info("Configuration loaded")

	return srv.Start(ctx)
}
