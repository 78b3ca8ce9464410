package engine

import (
	"context"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/medallion/internal/testutil"
	"github.com/ethpandaops/medallion/pkg/catalog"
	"github.com/ethpandaops/medallion/pkg/lock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "defaults", mutate: func(_ *Config) {}},
		{name: "memory store", mutate: func(c *Config) { c.Store.Type = StoreMemory }},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Type = "s3" }, wantErr: ErrUnknownStoreType},
		{name: "clickhouse without url", mutate: func(c *Config) { c.Store.Type = StoreClickHouse }},
		{name: "zero lock ttl", mutate: func(c *Config) { c.Lock.TTL = 0 }, wantErr: ErrInvalidLockTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.name == "clickhouse without url":
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := defaultConfig(t)

	assert.Equal(t, StoreLocal, cfg.Store.Type)
	assert.Equal(t, 30*time.Second, cfg.Lock.TTL)
	assert.Equal(t, "medallion", cfg.Redis.Prefix)
}

func TestOpenInProcess(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Store.Type = StoreMemory

	e, err := Open(context.Background(), logrus.New(), cfg)
	require.NoError(t, err)

	defer func() { require.NoError(t, e.Close()) }()

	assert.Equal(t, StoreMemory, e.Store.Name())
	assert.IsType(t, &catalog.Memory{}, e.Catalog)
	assert.IsType(t, &lock.Memory{}, e.Locker)
	assert.Nil(t, e.RedisOptions())
	assert.Equal(t, time.UTC, e.Now().Location())
}

func TestOpenWithRedis(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	cfg := defaultConfig(t)
	cfg.Store.Type = StoreMemory
	cfg.Redis.URL = "redis://" + mr.Addr()

	e, err := Open(context.Background(), logrus.New(), cfg)
	require.NoError(t, err)

	defer func() { require.NoError(t, e.Close()) }()

	ctx := context.Background()
	require.NoError(t, e.Register(ctx, "silver_ratings", "/data/silver/ratings"))

	entry, err := e.Catalog.Lookup(ctx, "silver_ratings")
	require.NoError(t, err)
	assert.Equal(t, "/data/silver/ratings", entry.Location)
	assert.Equal(t, StoreMemory, entry.Store)

	assert.True(t, mr.Exists("medallion:catalog"))
	assert.Equal(t, mr.Addr(), e.RedisOptions().Addr)
}

func TestOpenRedisUnreachable(t *testing.T) {
	mr := testutil.NewMiniredis(t)
	addr := mr.Addr()
	mr.Close()

	cfg := defaultConfig(t)
	cfg.Store.Type = StoreMemory
	cfg.Redis.URL = "redis://" + addr

	_, err := Open(context.Background(), logrus.New(), cfg)
	require.Error(t, err)
}
