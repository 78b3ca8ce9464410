package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores each run as a JSON string under <prefix>:run:<id> and indexes
// run IDs in the sorted set <prefix>:runs scored by start time.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

// NewRedis creates a Redis-backed ledger. A positive retention expires runs
// that started longer ago than retention.
func NewRedis(client *redis.Client, prefix string, retention time.Duration) *Redis {
	return &Redis{
		client:    client,
		keyPrefix: prefix,
		retention: retention,
	}
}

func (r *Redis) runKey(id string) string {
	return r.keyPrefix + ":run:" + id
}

func (r *Redis) indexKey() string {
	return r.keyPrefix + ":runs"
}

// Record implements Ledger
func (r *Redis) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return ErrEmptyRunID
	}

	data, err := json.Marshal(run)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.runKey(run.ID), data, r.retention)
	pipe.ZAdd(ctx, r.indexKey(), redis.Z{
		Score:  float64(run.StartedAt.UnixMilli()),
		Member: run.ID,
	})

	if r.retention > 0 {
		cutoff := time.Now().Add(-r.retention).UnixMilli()
		pipe.ZRemRangeByScore(ctx, r.indexKey(), "-inf", "("+strconv.FormatInt(cutoff, 10))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}

	return nil
}

// Get implements Ledger
func (r *Redis) Get(ctx context.Context, id string) (*Run, error) {
	data, err := r.client.Get(ctx, r.runKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}

		return nil, err
	}

	var run Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("corrupt run %s: %w", id, err)
	}

	return &run, nil
}

// List implements Ledger. A limit <= 0 returns every indexed run. Index
// entries whose run has expired are skipped.
func (r *Redis) List(ctx context.Context, limit int) ([]Run, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []Run{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.runKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(values))

	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			continue
		}

		var run Run
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return nil, fmt.Errorf("corrupt run %s: %w", ids[i], err)
		}

		runs = append(runs, run)
	}

	sortRuns(runs)

	return runs, nil
}
