package tasks

import (
	"testing"
	"time"

	"github.com/ethpandaops/medallion/internal/testutil"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *QueueManager {
	t.Helper()

	mr := testutil.NewMiniredis(t)

	qm := NewQueueManager(&asynq.RedisClientOpt{Addr: mr.Addr()}, "", 0)
	t.Cleanup(func() {
		assert.NoError(t, qm.Close())
	})

	return qm
}

func TestNewQueueManagerDefaults(t *testing.T) {
	qm := newTestQueue(t)

	assert.Equal(t, DefaultQueue, qm.Queue())
	assert.Equal(t, 30*time.Minute, qm.timeout)
}

func TestEnqueueStage(t *testing.T) {
	qm := newTestQueue(t)

	info, err := qm.EnqueueStage(StagePayload{Stage: "gold", Trigger: TriggerAPI})
	require.NoError(t, err)
	assert.Equal(t, "stage:gold", info.ID)
	assert.Equal(t, DefaultQueue, info.Queue)
	assert.Equal(t, TypeStageRun, info.Type)

	pending, err := qm.IsTaskPendingOrRunning("stage:gold")
	require.NoError(t, err)
	assert.True(t, pending)

	_, err = qm.EnqueueStage(StagePayload{Stage: "gold", Trigger: TriggerSchedule})
	require.ErrorIs(t, err, ErrAlreadyQueued)

	_, err = qm.EnqueueStage(StagePayload{Stage: "ingest/ratings", Trigger: TriggerAPI})
	require.NoError(t, err)

	stats, err := qm.GetQueueStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pending)
}

func TestEnqueuePipeline(t *testing.T) {
	qm := newTestQueue(t)

	_, err := qm.EnqueuePipeline(PipelinePayload{Trigger: TriggerSchedule})
	require.NoError(t, err)

	_, err = qm.EnqueuePipeline(PipelinePayload{Trigger: TriggerAPI})
	require.ErrorIs(t, err, ErrAlreadyQueued)
}

func TestIsTaskPendingOrRunningUnknown(t *testing.T) {
	qm := newTestQueue(t)

	pending, err := qm.IsTaskPendingOrRunning("stage:nope")
	require.NoError(t, err)
	assert.False(t, pending)
}
