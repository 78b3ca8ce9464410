package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/medallion/pkg/admin"
	"github.com/ethpandaops/medallion/pkg/delimited"
	"github.com/ethpandaops/medallion/pkg/observability"
	"github.com/ethpandaops/medallion/pkg/pipeline"
	"github.com/ethpandaops/medallion/pkg/tablekind"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// StageRunner runs stages. It is satisfied by *pipeline.Runner.
type StageRunner interface {
	RunStage(ctx context.Context, id string, params pipeline.Params) (*admin.Run, error)
	RunPipeline(ctx context.Context, params pipeline.Params, targets ...string) ([]admin.Run, error)
}

// TaskHandler handles task execution
type TaskHandler struct {
	runner StageRunner
	log    logrus.FieldLogger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(log logrus.FieldLogger, runner StageRunner) *TaskHandler {
	return &TaskHandler{
		runner: runner,
		log:    log.WithField("component", "task-handler"),
	}
}

// permanent marks configuration errors so asynq does not retry them
func permanent(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrMissingParam),
		errors.Is(err, pipeline.ErrInvalidMode),
		errors.Is(err, pipeline.ErrUnknownStage),
		errors.Is(err, pipeline.ErrTableNameMismatch),
		errors.Is(err, tablekind.ErrUnknownKind),
		errors.Is(err, delimited.ErrEmptyDelimiter):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}

// HandleStage handles stage run tasks
func (h *TaskHandler) HandleStage(ctx context.Context, t *asynq.Task) error {
	var payload StagePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		observability.RecordError("task-handler", "unmarshal_error")
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	log := h.log.WithFields(logrus.Fields{
		"stage":   payload.Stage,
		"trigger": payload.Trigger,
		"queued":  time.Since(payload.EnqueuedAt),
	})

	log.Info("Starting stage task")

	run, err := h.runner.RunStage(ctx, payload.Stage, payload.Params)
	if err != nil {
		observability.RecordError("task-handler", "stage_error")
		return permanent(err)
	}

	log.WithFields(logrus.Fields{
		"run_id": run.ID,
		"rows":   run.RowsWritten,
	}).Info("Stage task completed")

	return nil
}

// HandlePipeline handles pipeline run tasks
func (h *TaskHandler) HandlePipeline(ctx context.Context, t *asynq.Task) error {
	var payload PipelinePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		observability.RecordError("task-handler", "unmarshal_error")
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	log := h.log.WithFields(logrus.Fields{
		"targets": payload.Targets,
		"trigger": payload.Trigger,
	})

	log.Info("Starting pipeline task")

	runs, err := h.runner.RunPipeline(ctx, payload.Params, payload.Targets...)
	if err != nil {
		observability.RecordError("task-handler", "pipeline_error")
		return permanent(err)
	}

	log.WithField("stages", len(runs)).Info("Pipeline task completed")

	return nil
}

// Routes returns the task handler routes for Asynq
func (h *TaskHandler) Routes() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		TypeStageRun:    h.HandleStage,
		TypePipelineRun: h.HandlePipeline,
	}
}
