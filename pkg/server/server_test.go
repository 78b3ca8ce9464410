package server

import (
	"context"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/medallion/internal/testutil"
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/pipeline"
	"github.com/ethpandaops/medallion/pkg/scheduler"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	cfg.MetricsAddr = ""

	return cfg
}

func openEngine(t *testing.T, redisURL string) *engine.Engine {
	t.Helper()

	cfg := &engine.Config{}
	require.NoError(t, defaults.Set(cfg))

	cfg.Store.Type = engine.StoreMemory
	cfg.Redis.URL = redisURL

	eng, err := engine.Open(context.Background(), logrus.New(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() { _ = eng.Close() })

	return eng
}

func TestConfigValidate(t *testing.T) {
	cfg := defaultConfig(t)
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Worker.Enabled)
	assert.Equal(t, "@daily", cfg.Scheduler.Schedule)
	assert.False(t, cfg.API.Enabled)

	cfg.Scheduler.Schedule = "sometimes"
	require.ErrorIs(t, cfg.Validate(), scheduler.ErrInvalidSchedule)
}

func TestNewServerRequiresRedis(t *testing.T) {
	eng := openEngine(t, "")

	runner, err := pipeline.NewRunner(eng, nil)
	require.NoError(t, err)

	_, err = NewServer(logrus.New(), defaultConfig(t), eng, runner, "medallion")
	require.ErrorIs(t, err, ErrRedisConfigRequired)
}

func TestServerLifecycle(t *testing.T) {
	mr := testutil.NewMiniredis(t)
	eng := openEngine(t, "redis://"+mr.Addr())

	runner, err := pipeline.NewRunner(eng, nil)
	require.NoError(t, err)

	cfg := defaultConfig(t)
	cfg.Worker.Enabled = false

	srv, err := NewServer(logrus.New(), cfg, eng, runner, "medallion")
	require.NoError(t, err)

	assert.Nil(t, srv.worker)
	assert.NotNil(t, srv.scheduler)
	assert.Equal(t, "medallion", srv.queue.Queue())

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not stop")
	}
}
