package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/medallion/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogs(t *testing.T) map[string]Catalog {
	t.Helper()

	_, client := testutil.NewMiniredisClient(t)

	return map[string]Catalog{
		"memory": NewMemory(),
		"redis":  NewRedis(client, "test:catalog"),
	}
}

func TestCatalog(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := c.Lookup(ctx, "silver_ratings")
			require.ErrorIs(t, err, ErrNotRegistered)

			require.ErrorIs(t, c.Register(ctx, Entry{Name: " "}), ErrEmptyName)

			require.NoError(t, c.Register(ctx, Entry{Name: "silver_ratings", Location: "/a", Store: "local", UpdatedAt: ts}))
			require.NoError(t, c.Register(ctx, Entry{Name: "bronze_ratings", Location: "/b", Store: "local", UpdatedAt: ts}))
			require.NoError(t, c.Register(ctx, Entry{Name: "silver_ratings", Location: "/c", Store: "local", UpdatedAt: ts}))

			entry, err := c.Lookup(ctx, "silver_ratings")
			require.NoError(t, err)
			assert.Equal(t, "/c", entry.Location)
			assert.True(t, ts.Equal(entry.UpdatedAt))

			entries, err := c.List(ctx)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "bronze_ratings", entries[0].Name)
			assert.Equal(t, "silver_ratings", entries[1].Name)
		})
	}
}

func TestRegisterStampsTime(t *testing.T) {
	c := NewMemory()
	require.NoError(t, c.Register(context.Background(), Entry{Name: "gold_x", Location: "/g"}))

	entry, err := c.Lookup(context.Background(), "gold_x")
	require.NoError(t, err)
	assert.False(t, entry.UpdatedAt.IsZero())
}
