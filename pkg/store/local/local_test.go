package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/medallion/pkg/store"
	"github.com/ethpandaops/medallion/pkg/table"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDataset(t *testing.T, rows ...table.Row) *table.Dataset {
	t.Helper()

	schema := table.Schema{
		{Name: "movieId", Type: table.TypeInt},
		{Name: "title", Type: table.TypeString},
		{Name: "genres_arr", Type: table.TypeStringArray},
		{Name: "ingest_ts", Type: table.TypeTimestamp},
		{Name: "ingest_date", Type: table.TypeDate},
	}

	ds, err := table.New(schema, rows)
	require.NoError(t, err)

	return ds
}

func newTestStore() *Store {
	s := New(logrus.New())
	s.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }

	return s
}

func TestReadMissingTable(t *testing.T) {
	s := newTestStore()
	location := filepath.Join(t.TempDir(), "bronze", "ratings")

	_, err := s.Read(context.Background(), location)
	require.ErrorIs(t, err, store.ErrTableNotFound)

	ok, err := s.Exists(context.Background(), location)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore()
	location := filepath.Join(t.TempDir(), "movies")
	ts := time.Date(2024, 5, 1, 12, 30, 15, 500, time.UTC)

	in := testDataset(t,
		table.Row{int32(10), "Title", []string{"Drama", "Comedy"}, ts, table.TruncateDate(ts)},
		table.Row{int32(11), nil, []string{""}, ts, table.TruncateDate(ts)},
		table.Row{nil, "x", nil, nil, nil},
	)

	require.NoError(t, s.Write(context.Background(), location, in, store.ModeOverwrite))

	out, err := s.Read(context.Background(), location)
	require.NoError(t, err)
	assert.True(t, out.Schema().Equal(in.Schema()))
	assert.Equal(t, in.Rows()[0], out.Rows()[0])
	assert.Equal(t, in.Rows()[1], out.Rows()[1])
	assert.Equal(t, table.Row{nil, "x", []string{}, nil, nil}, out.Rows()[2])
}

func TestOverwriteIsIdempotent(t *testing.T) {
	s := newTestStore()
	location := filepath.Join(t.TempDir(), "silver")
	in := testDataset(t, table.Row{int32(1), "a", []string{"x"}, nil, nil})

	require.NoError(t, s.Write(context.Background(), location, in, store.ModeOverwrite))
	require.NoError(t, s.Write(context.Background(), location, in, store.ModeOverwrite))

	out, err := s.Read(context.Background(), location)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())

	history, err := s.History(location)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[1].Version)
	assert.Len(t, history[1].Files, 1)
}

func TestAppendGrowth(t *testing.T) {
	s := newTestStore()
	location := filepath.Join(t.TempDir(), "bronze")
	in := testDataset(t,
		table.Row{int32(1), "a", []string{"x"}, nil, nil},
		table.Row{int32(2), "b", []string{"y"}, nil, nil},
	)

	require.NoError(t, s.Write(context.Background(), location, in, store.ModeAppend))
	require.NoError(t, s.Write(context.Background(), location, in, store.ModeAppend))

	out, err := s.Read(context.Background(), location)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Len())

	history, err := s.History(location)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 4, history[1].Rows)
	assert.Len(t, history[1].Files, 2)
}

func TestAppendSchemaMismatch(t *testing.T) {
	s := newTestStore()
	location := filepath.Join(t.TempDir(), "bronze")

	require.NoError(t, s.Write(context.Background(), location,
		testDataset(t, table.Row{int32(1), "a", nil, nil, nil}), store.ModeOverwrite))

	other, err := table.New(table.Schema{{Name: "movieId", Type: table.TypeInt}}, nil)
	require.NoError(t, err)

	err = s.Write(context.Background(), location, other, store.ModeAppend)
	require.ErrorIs(t, err, table.ErrSchemaMismatch)

	out, err := s.Read(context.Background(), location)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
}

func TestWriteInvalidMode(t *testing.T) {
	s := newTestStore()

	err := s.Write(context.Background(), t.TempDir(), testDataset(t), "merge")
	require.ErrorIs(t, err, store.ErrInvalidMode)
}

func TestUncommittedPartsAreIgnored(t *testing.T) {
	s := newTestStore()
	location := filepath.Join(t.TempDir(), "silver")

	require.NoError(t, s.Write(context.Background(), location,
		testDataset(t, table.Row{int32(1), "a", nil, nil, nil}), store.ModeOverwrite))

	// A part left behind by a crashed write is not listed in any commit
	require.NoError(t, os.WriteFile(filepath.Join(location, "part-orphan.jsonl"), []byte(`{"movieId":2}`+"\n"), 0o600))

	out, err := s.Read(context.Background(), location)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
}

func TestCorruptCommit(t *testing.T) {
	s := newTestStore()
	location := filepath.Join(t.TempDir(), "silver")

	require.NoError(t, os.MkdirAll(filepath.Join(location, logDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(location, logDir, commitName(0)), []byte("{"), 0o600))

	_, err := s.Read(context.Background(), location)
	require.ErrorIs(t, err, ErrCorruptCommit)
}
