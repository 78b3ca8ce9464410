package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/medallion/pkg/admin"
	"github.com/ethpandaops/medallion/pkg/delimited"
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/lock"
	"github.com/ethpandaops/medallion/pkg/store"
	"github.com/ethpandaops/medallion/pkg/tablekind"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ratingsCSV = "userId,movieId,rating,timestamp\n1,10,4.0,946684800\n2,10,5.0,950000000\n2,10,5.0,950000000\n"
	moviesCSV  = "movieId,title,genres\n10,Title,Drama|Comedy\n"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	e := engine.NewInMemory(log)
	e.Clock = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	return e
}

func writeRaw(t *testing.T, raw, kind, content string) {
	t.Helper()

	dir := filepath.Join(raw, kind)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, kind+".csv"), []byte(content), 0o600))
}

func testConfig(raw string) *Config {
	cfg := DefaultConfig()
	cfg.Paths.Raw = raw
	cfg.Paths.Bronze = "/lake/bronze"
	cfg.Paths.Silver = "/lake/silver"
	cfg.Paths.Gold = "/lake/gold"
	cfg.Gold.MinRatings = 1

	return cfg
}

func TestParseRunMode(t *testing.T) {
	tests := []struct {
		in      string
		want    RunMode
		write   store.Mode
		wantErr bool
	}{
		{in: "full", want: ModeFull, write: store.ModeOverwrite},
		{in: " Incremental ", want: ModeIncremental, write: store.ModeAppend},
		{in: "merge", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRunMode(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMode)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.write, got.WriteMode())
		})
	}
}

func TestParamsValidate(t *testing.T) {
	full := Params{
		RawBasePath:    "/raw",
		BronzeBasePath: "/bronze",
		SilverBasePath: "/silver",
		GoldBasePath:   "/gold",
		RunMode:        "full",
		TableName:      "ratings",
		Delimiter:      ",",
	}

	tests := []struct {
		name    string
		layer   string
		mutate  func(p *Params)
		wantErr error
	}{
		{name: "bronze ok", layer: LayerBronze, mutate: func(_ *Params) {}},
		{name: "bronze without raw", layer: LayerBronze, mutate: func(p *Params) { p.RawBasePath = " " }, wantErr: ErrMissingParam},
		{name: "bronze bad mode", layer: LayerBronze, mutate: func(p *Params) { p.RunMode = "merge" }, wantErr: ErrInvalidMode},
		{name: "bronze bad table", layer: LayerBronze, mutate: func(p *Params) { p.TableName = "tags" }, wantErr: tablekind.ErrUnknownKind},
		{name: "bronze empty delimiter", layer: LayerBronze, mutate: func(p *Params) { p.Delimiter = "" }, wantErr: delimited.ErrEmptyDelimiter},
		{name: "silver ignores raw", layer: LayerSilver, mutate: func(p *Params) { p.RawBasePath = "" }},
		{name: "silver without table", layer: LayerSilver, mutate: func(p *Params) { p.TableName = "" }, wantErr: ErrMissingParam},
		{name: "gold ignores table", layer: LayerGold, mutate: func(p *Params) { p.TableName = "" }},
		{name: "gold without gold path", layer: LayerGold, mutate: func(p *Params) { p.GoldBasePath = "" }, wantErr: ErrMissingParam},
		{name: "pipeline without silver", layer: "", mutate: func(p *Params) { p.SilverBasePath = "" }, wantErr: ErrMissingParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := full
			tt.mutate(&p)

			err := p.Validate(tt.layer)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParamsMerge(t *testing.T) {
	got := Params{RunMode: "incremental"}.Merge(Params{RunMode: "full", Delimiter: ",", RawBasePath: "/raw"})

	assert.Equal(t, "incremental", got.RunMode)
	assert.Equal(t, ",", got.Delimiter)
	assert.Equal(t, "/raw", got.RawBasePath)
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "full", cfg.Ingest.Mode)
	assert.Equal(t, ",", cfg.Ingest.Delimiter)
	assert.NotEmpty(t, cfg.Paths.Layout)
	assert.Equal(t, 10, cfg.Gold.TopN)

	cfg = DefaultConfig()
	cfg.Ingest.Mode = "sometimes"
	require.ErrorIs(t, cfg.Validate(), ErrInvalidMode)

	cfg = DefaultConfig()
	cfg.Gold.MinRatings = -1
	require.ErrorIs(t, cfg.Validate(), ErrInvalidMinRatings)
}

func TestStages(t *testing.T) {
	runner, err := NewRunner(newTestEngine(t), nil)
	require.NoError(t, err)

	ids := make([]string, 0)
	for _, s := range runner.Stages() {
		ids = append(ids, s.ID)
	}

	assert.Equal(t, []string{
		"ingest/ratings",
		"ingest/movies",
		"standardize/ratings",
		"standardize/movies",
		"gold",
	}, ids)

	st, err := runner.Stage("standardize/movies")
	require.NoError(t, err)
	assert.Equal(t, "silver_movies", st.Table())

	_, err = runner.Stage("publish")
	require.ErrorIs(t, err, ErrUnknownStage)
}

func TestRunPipeline(t *testing.T) {
	ctx := context.Background()
	raw := t.TempDir()
	writeRaw(t, raw, "ratings", ratingsCSV)
	writeRaw(t, raw, "movies", moviesCSV)

	eng := newTestEngine(t)
	runner, err := NewRunner(eng, testConfig(raw))
	require.NoError(t, err)

	runs, err := runner.RunPipeline(ctx, Params{})
	require.NoError(t, err)
	require.Len(t, runs, 5)

	for _, run := range runs {
		assert.Equal(t, admin.StatusSuccess, run.Status, run.Stage)
		assert.Equal(t, runs[0].PipelineID, run.PipelineID)
	}

	assert.Equal(t, "ingest/ratings", runs[0].Stage)
	assert.Equal(t, "/lake/bronze/ratings", runs[0].Location)
	assert.EqualValues(t, 3, runs[0].RowsWritten)
	assert.Equal(t, "standardize/ratings", runs[2].Stage)
	assert.EqualValues(t, 1, runs[2].DuplicatesRemoved)

	decades, err := eng.Store.Read(ctx, "/lake/gold/top_movies_per_decade")
	require.NoError(t, err)
	require.Equal(t, 1, decades.Len())
	assert.Equal(t, int32(2000), decades.Rows()[0][0])

	genres, err := eng.Store.Read(ctx, "/lake/gold/avg_rating_per_genre")
	require.NoError(t, err)
	assert.Equal(t, 2, genres.Len())

	entries, err := eng.Catalog.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 6)

	recorded, err := eng.Ledger.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recorded, 5)
}

func TestRunPipelineTargets(t *testing.T) {
	raw := t.TempDir()
	writeRaw(t, raw, "ratings", ratingsCSV)

	runner, err := NewRunner(newTestEngine(t), testConfig(raw))
	require.NoError(t, err)

	runs, err := runner.RunPipeline(context.Background(), Params{}, "standardize/ratings")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "ingest/ratings", runs[0].Stage)
	assert.Equal(t, "standardize/ratings", runs[1].Stage)

	_, err = runner.RunPipeline(context.Background(), Params{}, "publish")
	require.ErrorIs(t, err, ErrUnknownStage)
}

func TestRunPipelineValidatesFirst(t *testing.T) {
	eng := newTestEngine(t)

	cfg := testConfig("")
	runner, err := NewRunner(eng, cfg)
	require.NoError(t, err)

	runs, err := runner.RunPipeline(context.Background(), Params{})
	require.ErrorIs(t, err, ErrMissingParam)
	assert.Empty(t, runs)

	recorded, err := eng.Ledger.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, recorded)
}

func TestRunPipelineStopsOnFailure(t *testing.T) {
	raw := t.TempDir()
	writeRaw(t, raw, "ratings", ratingsCSV)

	eng := newTestEngine(t)
	runner, err := NewRunner(eng, testConfig(raw))
	require.NoError(t, err)

	runs, err := runner.RunPipeline(context.Background(), Params{})
	require.Error(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, admin.StatusSuccess, runs[0].Status)
	assert.Equal(t, "ingest/movies", runs[1].Stage)
	assert.Equal(t, admin.StatusFailed, runs[1].Status)
	assert.NotEmpty(t, runs[1].Error)

	_, err = eng.Store.Read(context.Background(), "/lake/silver/ratings")
	require.ErrorIs(t, err, store.ErrTableNotFound)
}

func TestRunStageLocked(t *testing.T) {
	ctx := context.Background()
	raw := t.TempDir()
	writeRaw(t, raw, "ratings", ratingsCSV)

	eng := newTestEngine(t)
	runner, err := NewRunner(eng, testConfig(raw))
	require.NoError(t, err)

	lease, err := eng.Locker.Acquire(ctx, "bronze_ratings")
	require.NoError(t, err)

	run, err := runner.RunStage(ctx, "ingest/ratings", Params{})
	require.ErrorIs(t, err, lock.ErrLocked)
	assert.Nil(t, run)

	require.NoError(t, lease.Release(ctx))

	run, err = runner.RunStage(ctx, "ingest/ratings", Params{RunMode: "incremental"})
	require.NoError(t, err)
	assert.Equal(t, string(store.ModeAppend), run.Mode)

	// the lease is released after the run
	lease, err = eng.Locker.Acquire(ctx, "bronze_ratings")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestRunStageIncrementalGrows(t *testing.T) {
	ctx := context.Background()
	raw := t.TempDir()
	writeRaw(t, raw, "ratings", ratingsCSV)

	eng := newTestEngine(t)
	runner, err := NewRunner(eng, testConfig(raw))
	require.NoError(t, err)

	for range 2 {
		_, err = runner.RunStage(ctx, "ingest/ratings", Params{RunMode: "incremental"})
		require.NoError(t, err)
	}

	bronze, err := eng.Store.Read(ctx, "/lake/bronze/ratings")
	require.NoError(t, err)
	assert.Equal(t, 6, bronze.Len())
}

func TestRunStageTableName(t *testing.T) {
	raw := t.TempDir()
	writeRaw(t, raw, "ratings", ratingsCSV)

	tests := []struct {
		name      string
		stage     string
		tableName string
		wantErr   error
	}{
		{name: "defaults to the stage kind", stage: "ingest/ratings"},
		{name: "matching kind", stage: "ingest/ratings", tableName: "ratings"},
		{name: "unknown kind", stage: "ingest/ratings", tableName: "tags", wantErr: tablekind.ErrUnknownKind},
		{name: "other kind", stage: "ingest/ratings", tableName: "movies", wantErr: ErrTableNameMismatch},
		{name: "other kind on silver", stage: "standardize/movies", tableName: "ratings", wantErr: ErrTableNameMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newTestEngine(t)
			runner, err := NewRunner(eng, testConfig(raw))
			require.NoError(t, err)

			run, err := runner.RunStage(context.Background(), tt.stage, Params{TableName: tt.tableName})
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, admin.StatusSuccess, run.Status)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, run)

			recorded, err := eng.Ledger.List(context.Background(), 0)
			require.NoError(t, err)
			assert.Empty(t, recorded)

			exists, err := eng.Store.Exists(context.Background(), "/lake/bronze/ratings")
			require.NoError(t, err)
			assert.False(t, exists)
		})
	}
}

func TestRunPipelineTableName(t *testing.T) {
	raw := t.TempDir()
	writeRaw(t, raw, "ratings", ratingsCSV)
	writeRaw(t, raw, "movies", moviesCSV)

	eng := newTestEngine(t)
	runner, err := NewRunner(eng, testConfig(raw))
	require.NoError(t, err)

	runs, err := runner.RunPipeline(context.Background(), Params{TableName: "tags"})
	require.ErrorIs(t, err, tablekind.ErrUnknownKind)
	assert.Empty(t, runs)

	runs, err = runner.RunPipeline(context.Background(), Params{TableName: "ratings"})
	require.NoError(t, err)
	assert.Len(t, runs, 5)
}
