package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/medallion/pkg/admin"
	"github.com/ethpandaops/medallion/pkg/catalog"
	"github.com/ethpandaops/medallion/pkg/clickhouse"
	"github.com/ethpandaops/medallion/pkg/lock"
	"github.com/ethpandaops/medallion/pkg/store"
	chstore "github.com/ethpandaops/medallion/pkg/store/clickhouse"
	"github.com/ethpandaops/medallion/pkg/store/local"
	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Engine is opened once per process and passed into every stage. Close
// releases its connections.
type Engine struct {
	Log     logrus.FieldLogger
	Store   store.Store
	Catalog catalog.Catalog
	Ledger  admin.Ledger
	Locker  lock.Locker
	Clock   func() time.Time

	redisOptions *r.Options
	redisClient  *r.Client
	chClient     clickhouse.ClientInterface
}

// Open builds an engine from configuration. With Redis configured the
// catalog, ledger and lock live in Redis and are shared between processes;
// otherwise they are in-process.
func Open(ctx context.Context, log logrus.FieldLogger, cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		Log:   log,
		Clock: func() time.Time { return time.Now().UTC() },
	}

	switch cfg.Store.Type {
	case StoreClickHouse:
		client, err := clickhouse.NewClient(log, &cfg.Store.ClickHouse)
		if err != nil {
			return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
		}

		if err := client.Start(); err != nil {
			return nil, err
		}

		e.chClient = client
		e.Store = chstore.New(log, client, &cfg.Store.ClickHouse)
	case StoreMemory:
		e.Store = store.NewMemory()
	default:
		e.Store = local.New(log)
	}

	e.Store = store.Instrument(e.Store)

	if !cfg.Redis.Enabled() {
		e.Catalog = catalog.NewMemory()
		e.Ledger = admin.NewMemory()
		e.Locker = lock.NewMemory()

		return e, nil
	}

	opt, err := cfg.Redis.Options()
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	e.redisOptions = opt
	e.redisClient = r.NewClient(opt)

	if err := e.redisClient.Ping(ctx).Err(); err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	e.Catalog = catalog.NewRedis(e.redisClient, cfg.Redis.PrefixKey("catalog"))
	e.Ledger = admin.NewRedis(e.redisClient, cfg.Redis.Prefix, cfg.Ledger.Retention)
	e.Locker = lock.NewRedis(log, e.redisClient, cfg.Redis.Prefix, cfg.Lock.TTL)

	log.WithField("addr", opt.Addr).Info("Using Redis for catalog, ledger and locks")

	return e, nil
}

// NewInMemory returns an engine whose every collaborator is in-process
func NewInMemory(log logrus.FieldLogger) *Engine {
	return &Engine{
		Log:     log,
		Store:   store.NewMemory(),
		Catalog: catalog.NewMemory(),
		Ledger:  admin.NewMemory(),
		Locker:  lock.NewMemory(),
		Clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Now returns the engine clock in UTC
func (e *Engine) Now() time.Time {
	return e.Clock().UTC()
}

// Register records a logical name for a location in the catalog
func (e *Engine) Register(ctx context.Context, name, location string) error {
	return e.Catalog.Register(ctx, catalog.Entry{
		Name:      name,
		Location:  location,
		Store:     e.Store.Name(),
		UpdatedAt: e.Now(),
	})
}

// RedisOptions returns the Redis connection options, or nil without Redis
func (e *Engine) RedisOptions() *r.Options {
	return e.redisOptions
}

// Close releases connections held by the engine
func (e *Engine) Close() error {
	var firstErr error

	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.Log.WithError(err).Error("Failed to close Redis client")
			firstErr = err
		}
	}

	if e.chClient != nil {
		if err := e.chClient.Stop(); err != nil {
			e.Log.WithError(err).Error("Failed to stop ClickHouse client")

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
