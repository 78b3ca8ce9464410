package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethpandaops/medallion/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgers(t *testing.T) map[string]Ledger {
	t.Helper()

	_, client := testutil.NewMiniredisClient(t)

	return map[string]Ledger{
		"memory": NewMemory(),
		"redis":  NewRedis(client, "test", 0),
	}
}

func TestLedger(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := l.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrRunNotFound)
			require.ErrorIs(t, l.Record(ctx, Run{}), ErrEmptyRunID)

			runs, err := l.List(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, runs)

			for i, id := range []string{"a", "b", "c"} {
				run := Run{
					ID:        id,
					Stage:     "ingest/ratings",
					Table:     "bronze_ratings",
					Mode:      "overwrite",
					StartedAt: base.Add(time.Duration(i) * time.Minute),
					Status:    StatusRunning,
				}
				require.NoError(t, l.Record(ctx, run))
			}

			run, err := l.Get(ctx, "b")
			require.NoError(t, err)
			run.RowsWritten = 42
			run.Finish(base.Add(90*time.Second), errors.New("boom"))
			require.NoError(t, l.Record(ctx, *run))

			got, err := l.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, got.Status)
			assert.Equal(t, "boom", got.Error)
			assert.Equal(t, int64(42), got.RowsWritten)
			assert.Equal(t, 30*time.Second, got.Duration())

			runs, err = l.List(ctx, 2)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, "c", runs[0].ID)
			assert.Equal(t, "b", runs[1].ID)

			runs, err = l.List(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, runs, 3)
		})
	}
}

func TestRunFinish(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	run := Run{ID: "x", StartedAt: start, Status: StatusRunning}

	assert.Zero(t, run.Duration())

	run.Finish(start.Add(time.Second), nil)
	assert.Equal(t, StatusSuccess, run.Status)
	assert.Empty(t, run.Error)
	assert.Equal(t, time.Second, run.Duration())
}

func TestRedisRetention(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	l := NewRedis(client, "test", time.Hour)
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, Run{ID: "old", StartedAt: time.Now().Add(-2 * time.Hour)}))
	require.NoError(t, l.Record(ctx, Run{ID: "new", StartedAt: time.Now()}))

	runs, err := l.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)

	mr.FastForward(2 * time.Hour)

	_, err = l.Get(ctx, "new")
	require.ErrorIs(t, err, ErrRunNotFound)
}
