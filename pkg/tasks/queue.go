package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/medallion/pkg/observability"
	"github.com/hibiken/asynq"
)

// Define static errors
var (
	ErrAlreadyQueued = errors.New("task is already queued or running")
)

// DefaultQueue is the queue every task goes to unless configured otherwise
const DefaultQueue = "medallion"

// QueueManager manages task queuing
type QueueManager struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	timeout   time.Duration
}

// NewQueueManager creates a new queue manager
func NewQueueManager(redisOpt *asynq.RedisClientOpt, queue string, timeout time.Duration) *QueueManager {
	if queue == "" {
		queue = DefaultQueue
	}

	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	return &QueueManager{
		client:    asynq.NewClient(*redisOpt),
		inspector: asynq.NewInspector(*redisOpt),
		queue:     queue,
		timeout:   timeout,
	}
}

// Queue returns the queue name tasks are enqueued on
func (q *QueueManager) Queue() string {
	return q.queue
}

// EnqueueStage enqueues a stage run. ErrAlreadyQueued is returned while a
// task for the same stage is pending or running.
func (q *QueueManager) EnqueueStage(payload StagePayload, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now().UTC()
	}

	info, err := q.enqueue(TypeStageRun, payload.UniqueID(), payload, opts...)
	if err == nil {
		observability.RecordTaskEnqueued(payload.Stage, payload.Trigger)
	}

	return info, err
}

// EnqueuePipeline enqueues a pipeline run. ErrAlreadyQueued is returned
// while another pipeline run is pending or running.
func (q *QueueManager) EnqueuePipeline(payload PipelinePayload, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if payload.EnqueuedAt.IsZero() {
		payload.EnqueuedAt = time.Now().UTC()
	}

	info, err := q.enqueue(TypePipelineRun, payload.UniqueID(), payload, opts...)
	if err == nil {
		observability.RecordTaskEnqueued("pipeline", payload.Trigger)
	}

	return info, err
}

func (q *QueueManager) enqueue(taskType, id string, payload any, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	task := asynq.NewTask(taskType, data)

	// Default options
	defaultOpts := []asynq.Option{
		asynq.TaskID(id),
		asynq.Queue(q.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(q.timeout),
	}

	allOpts := defaultOpts
	allOpts = append(allOpts, opts...)

	info, err := q.client.Enqueue(task, allOpts...)
	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return info, err
	}

	// A finished task keeps its ID until deleted
	active, err := q.IsTaskPendingOrRunning(id)
	if err != nil {
		return nil, err
	}

	if active {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyQueued, id)
	}

	if err := q.inspector.DeleteTask(q.queue, id); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("failed to delete finished task %s: %w", id, err)
	}

	return q.client.Enqueue(task, allOpts...)
}

func isNotFound(err error) bool {
	return errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound)
}

// IsTaskPendingOrRunning checks if a task is pending or running
func (q *QueueManager) IsTaskPendingOrRunning(id string) (bool, error) {
	info, err := q.inspector.GetTaskInfo(q.queue, id)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, err
	}

	return info.State == asynq.TaskStatePending ||
		info.State == asynq.TaskStateActive ||
		info.State == asynq.TaskStateScheduled ||
		info.State == asynq.TaskStateRetry, nil
}

// GetQueueStats returns queue statistics
func (q *QueueManager) GetQueueStats() (*asynq.QueueInfo, error) {
	return q.inspector.GetQueueInfo(q.queue)
}

// Close closes the queue manager
func (q *QueueManager) Close() error {
	if err := q.inspector.Close(); err != nil {
		return err
	}

	return q.client.Close()
}
