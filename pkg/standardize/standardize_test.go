package standardize

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/store"
	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/ethpandaops/medallion/pkg/tablekind"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//nolint:gochecknoglobals // Shared fixture timestamp
var ingestTS = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	return engine.NewInMemory(log)
}

func bronzeRatings(t *testing.T, rows ...table.Row) *table.Dataset {
	t.Helper()

	full := make([]table.Row, len(rows))
	for i, r := range rows {
		full[i] = append(append(table.Row(nil), r...), ingestTS, table.TruncateDate(ingestTS))
	}

	ds, err := table.New(tablekind.Ratings{}.BronzeSchema(), full)
	require.NoError(t, err)

	return ds
}

func bronzeMovies(t *testing.T, rows ...table.Row) *table.Dataset {
	t.Helper()

	full := make([]table.Row, len(rows))
	for i, r := range rows {
		full[i] = append(append(table.Row(nil), r...), ingestTS, table.TruncateDate(ingestTS))
	}

	ds, err := table.New(tablekind.Movies{}.BronzeSchema(), full)
	require.NoError(t, err)

	return ds
}

func TestStandardizeRatings(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	bronze := bronzeRatings(t,
		table.Row{int32(1), int32(10), 4.0, int64(946684800)},
		table.Row{int32(1), int32(10), 4.0, int64(946684800)},
		table.Row{int32(2), int32(10), 5.0, int64(950000000)},
		table.Row{int32(3), nil, 3.0, nil},
	)
	require.NoError(t, e.Store.Write(ctx, "bronze/ratings", bronze, store.ModeOverwrite))

	req := Request{Kind: tablekind.Ratings{}, Source: "bronze/ratings", Target: "silver/ratings"}

	result, err := Standardize(ctx, e, req)
	require.NoError(t, err)
	assert.Equal(t, "silver_ratings", result.Table)
	assert.Equal(t, 4, result.RowsRead)
	assert.Equal(t, 3, result.RowsWritten)
	assert.Equal(t, 1, result.DuplicatesRemoved)

	silver, err := e.Store.Read(ctx, "silver/ratings")
	require.NoError(t, err)
	assert.True(t, silver.Schema().Equal(tablekind.Ratings{}.SilverSchema()))
	assert.Equal(t, []table.Row{
		{int32(1), int32(10), 4.0, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
		{int32(2), int32(10), 5.0, time.Unix(950000000, 0).UTC()},
		{int32(3), nil, 3.0, nil},
	}, silver.Rows())

	entry, err := e.Catalog.Lookup(ctx, "silver_ratings")
	require.NoError(t, err)
	assert.Equal(t, "silver/ratings", entry.Location)

	// Rerunning on unchanged bronze yields the same silver table
	_, err = Standardize(ctx, e, req)
	require.NoError(t, err)

	again, err := e.Store.Read(ctx, "silver/ratings")
	require.NoError(t, err)
	assert.Equal(t, silver.Rows(), again.Rows())
}

func TestStandardizeMovies(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	bronze := bronzeMovies(t,
		table.Row{int32(10), "  Title  ", " Drama|Comedy "},
		table.Row{int32(11), "No Genres", ""},
		table.Row{int32(12), "Unknown", nil},
		table.Row{int32(10), "Title", "Drama|Comedy"},
	)
	require.NoError(t, e.Store.Write(ctx, "bronze/movies", bronze, store.ModeOverwrite))

	result, err := Standardize(ctx, e, Request{Kind: tablekind.Movies{}, Source: "bronze/movies", Target: "silver/movies"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.DuplicatesRemoved, "trimmed rows collapse into one")

	silver, err := e.Store.Read(ctx, "silver/movies")
	require.NoError(t, err)
	assert.Equal(t, []table.Row{
		{int32(10), "Title", "Drama|Comedy", []string{"Drama", "Comedy"}},
		{int32(11), "No Genres", "", []string{""}},
		{int32(12), "Unknown", nil, nil},
	}, silver.Rows())
}

func TestStandardizeMissingBronze(t *testing.T) {
	e := newEngine(t)

	_, err := Standardize(context.Background(), e, Request{Kind: tablekind.Ratings{}, Source: "bronze/nope", Target: "silver/ratings"})
	require.ErrorIs(t, err, store.ErrTableNotFound)

	exists, err := e.Store.Exists(context.Background(), "silver/ratings")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{name: "no kind", req: Request{Source: "a", Target: "b"}, wantErr: ErrNoKind},
		{name: "no source", req: Request{Kind: tablekind.Movies{}, Target: "b"}, wantErr: ErrNoSource},
		{name: "no target", req: Request{Kind: tablekind.Movies{}, Source: "a"}, wantErr: ErrNoTarget},
		{name: "valid", req: Request{Kind: tablekind.Movies{}, Source: "a", Target: "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPipelineSchema(t *testing.T) {
	for _, kind := range tablekind.All() {
		t.Run(kind.Name(), func(t *testing.T) {
			out, err := Pipeline(kind).Schema(kind.BronzeSchema())
			require.NoError(t, err)
			assert.True(t, out.Equal(kind.SilverSchema()))
		})
	}
}
