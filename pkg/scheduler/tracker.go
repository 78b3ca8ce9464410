package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	r "github.com/ethpandaops/medallion/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// lastRunKey is the hash holding every task's last run, field = task ID,
// value = unix milliseconds: <prefix>:scheduler:last_run
const lastRunKey = "scheduler:last_run"

// scheduleTracker remembers when each scheduled task last fired, so a new
// leader continues the schedule instead of restarting it
type scheduleTracker interface {
	// GetLastRun returns the zero time for a task that never ran
	GetLastRun(ctx context.Context, taskID string) (time.Time, error)
	SetLastRun(ctx context.Context, taskID string, at time.Time) error
	// Prune forgets tasks not in keep and returns the forgotten IDs
	Prune(ctx context.Context, keep []string) ([]string, error)
	Close() error
}

type redisScheduleTracker struct {
	log    logrus.FieldLogger
	client *redis.Client
	key    string
}

// newScheduleTracker creates a Redis-backed schedule tracker
func newScheduleTracker(log logrus.FieldLogger, client *redis.Client, prefix string) scheduleTracker {
	return &redisScheduleTracker{
		log:    log.WithField("component", "schedule_tracker"),
		client: client,
		key:    r.Key(prefix, lastRunKey),
	}
}

func (t *redisScheduleTracker) GetLastRun(ctx context.Context, taskID string) (time.Time, error) {
	val, err := t.client.HGet(ctx, t.key, taskID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}

	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last run of %s: %w", taskID, err)
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid last run %q of %s: %w", val, taskID, err)
	}

	return time.UnixMilli(ms).UTC(), nil
}

func (t *redisScheduleTracker) SetLastRun(ctx context.Context, taskID string, at time.Time) error {
	if err := t.client.HSet(ctx, t.key, taskID, at.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to set last run of %s: %w", taskID, err)
	}

	t.log.WithFields(logrus.Fields{
		"task_id":  taskID,
		"last_run": at,
	}).Debug("Updated last run")

	return nil
}

func (t *redisScheduleTracker) Prune(ctx context.Context, keep []string) ([]string, error) {
	tracked, err := t.client.HKeys(ctx, t.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked tasks: %w", err)
	}

	wanted := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		wanted[id] = struct{}{}
	}

	var stale []string

	for _, id := range tracked {
		if _, ok := wanted[id]; !ok {
			stale = append(stale, id)
		}
	}

	if len(stale) == 0 {
		return nil, nil
	}

	if err := t.client.HDel(ctx, t.key, stale...).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune tracked tasks: %w", err)
	}

	return stale, nil
}

func (t *redisScheduleTracker) Close() error {
	return t.client.Close()
}

var _ scheduleTracker = (*redisScheduleTracker)(nil)
