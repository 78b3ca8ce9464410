package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/medallion/internal/testutil"
	"github.com/ethpandaops/medallion/pkg/tasks"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu       sync.Mutex
	payloads []tasks.PipelinePayload
}

func (q *recordingQueue) EnqueuePipeline(payload tasks.PipelinePayload, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.payloads = append(q.payloads, payload)

	return &asynq.TaskInfo{ID: payload.UniqueID()}, nil
}

func TestNewServiceInvalidSchedule(t *testing.T) {
	_, err := NewService(logrus.New(), &Config{Enabled: true, Schedule: "whenever"}, &redis.Options{}, "medallion", &recordingQueue{})
	require.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestServiceEnqueuePipeline(t *testing.T) {
	mr := testutil.NewMiniredis(t)
	queue := &recordingQueue{}

	cfg := &Config{Enabled: true, Schedule: "@hourly", Targets: []string{"gold"}}

	svc, err := NewService(logrus.New(), cfg, &redis.Options{Addr: mr.Addr()}, "medallion", queue)
	require.NoError(t, err)

	s := svc.(*service)
	require.Len(t, s.schedule, 1)
	assert.Equal(t, PipelineTaskID, s.schedule[0].ID)

	require.NoError(t, s.schedule[0].Enqueue(context.Background()))

	require.Len(t, queue.payloads, 1)
	assert.Equal(t, []string{"gold"}, queue.payloads[0].Targets)
	assert.Equal(t, tasks.TriggerSchedule, queue.payloads[0].Trigger)
}

func TestServiceStartStop(t *testing.T) {
	mr := testutil.NewMiniredis(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, err := NewService(logrus.New(), &Config{Enabled: true, Schedule: "@daily"}, &redis.Options{Addr: mr.Addr()}, "medallion", &recordingQueue{})
	require.NoError(t, err)

	require.NoError(t, svc.Start(ctx))

	// Wait for promotion and the first tick, which seeds the last run
	require.Eventually(t, func() bool {
		return mr.HGet("medallion:scheduler:last_run", "pipeline") != ""
	}, retryInterval+5*time.Second, 100*time.Millisecond)

	require.NoError(t, svc.Stop())
	assert.False(t, mr.Exists("medallion:scheduler:lock:leader"))
}
