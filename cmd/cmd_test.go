package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethpandaops/medallion/internal/testutil"
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()

	return out.String(), err
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)

		assert.Equal(t, "info", cfg.Logging)
		assert.Equal(t, engine.StoreLocal, cfg.Engine.Store.Type)
		assert.Equal(t, string(pipeline.ModeFull), cfg.Pipeline.Ingest.Mode)
		assert.Equal(t, ",", cfg.Pipeline.Ingest.Delimiter)
		assert.EqualValues(t, 50, cfg.Pipeline.Gold.MinRatings)
		assert.Equal(t, 10, cfg.Pipeline.Gold.TopN)
		assert.Equal(t, "@daily", cfg.Server.Scheduler.Schedule)
		require.NoError(t, cfg.Validate())
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
logging: debug
paths:
  raw: /data/raw
  gold: /data/gold
store:
  type: memory
ingest:
  mode: incremental
  delimiter: "::"
  encoding: latin1
gold:
  minRatings: 5
scheduler:
  schedule: "@hourly"
api:
  enabled: true
`)

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.NoError(t, cfg.Validate())

		assert.Equal(t, "debug", cfg.Logging)
		assert.Equal(t, "/data/raw", cfg.Pipeline.Paths.Raw)
		assert.Equal(t, engine.StoreMemory, cfg.Engine.Store.Type)
		assert.Equal(t, "::", cfg.Pipeline.Ingest.Delimiter)
		assert.EqualValues(t, 5, cfg.Pipeline.Gold.MinRatings)
		assert.Equal(t, 10, cfg.Pipeline.Gold.TopN)
		assert.Equal(t, "@hourly", cfg.Server.Scheduler.Schedule)
		assert.True(t, cfg.Server.API.Enabled)
		assert.Equal(t, ":8080", cfg.Server.API.Addr)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "paths: [unclosed"))
		require.Error(t, err)
	})

	t.Run("invalid logging level", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, "logging: loud\n"))
		require.NoError(t, err)
		require.Error(t, cfg.Validate())
	})
}

func TestRunCommand(t *testing.T) {
	raw := testutil.WriteRaw(t)
	lake := t.TempDir()

	config := writeConfig(t, "gold:\n  minRatings: 1\n")

	out, err := execute(t, "run", "--config", config, "--log-level", "error", "--store", "local",
		"--raw_base_path", raw,
		"--bronze_base_path", filepath.Join(lake, "bronze"),
		"--silver_base_path", filepath.Join(lake, "silver"),
		"--gold_base_path", filepath.Join(lake, "gold"),
	)
	require.NoError(t, err, out)

	for _, stage := range []string{"ingest/ratings", "ingest/movies", "standardize/ratings", "standardize/movies", "gold"} {
		assert.Contains(t, out, stage)
	}

	assert.Equal(t, 5, strings.Count(out, "success"))

	_, err = os.Stat(filepath.Join(lake, "gold", "top_movies_per_decade"))
	require.NoError(t, err)
}

func TestIngestRequiresTableName(t *testing.T) {
	_, err := execute(t, "ingest", "--config", writeConfig(t, ""), "--store", "memory", "--raw_base_path", "/raw")
	require.ErrorIs(t, err, pipeline.ErrMissingParam)
}

func TestConvertCommand(t *testing.T) {
	dir := t.TempDir()

	ratings := filepath.Join(dir, "ratings.dat")
	movies := filepath.Join(dir, "movies.dat")
	outDir := filepath.Join(dir, "out")

	require.NoError(t, os.WriteFile(ratings, []byte("1::10::4.0::946684800\n"), 0o600))
	require.NoError(t, os.WriteFile(movies, []byte("10::Title (2000)::Drama\n"), 0o600))

	out, err := execute(t, "convert", "--ratings", ratings, "--movies", movies, "--outdir", outDir)
	require.NoError(t, err, out)

	assert.Contains(t, out, filepath.Join(outDir, "ratings_subset.csv"))
	assert.Contains(t, out, filepath.Join(outDir, "movies.csv"))
}

func TestStagesCommand(t *testing.T) {
	out, err := execute(t, "stages", "--config", writeConfig(t, ""), "--dot")
	require.NoError(t, err, out)

	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "standardize/ratings")
}
