package handlers

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ethpandaops/medallion/pkg/pipeline"
	"github.com/ethpandaops/medallion/pkg/tasks"
	"github.com/gofiber/fiber/v3"
	"github.com/hibiken/asynq"
)

// PipelineRunRequest is the body of POST /api/v1/pipeline/runs
type PipelineRunRequest struct {
	Targets []string        `json:"targets,omitempty"`
	Params  pipeline.Params `json:"params"`
}

// StageRunRequest is the body of POST /api/v1/runs
type StageRunRequest struct {
	Stage  string          `json:"stage"`
	Params pipeline.Params `json:"params"`
}

// EnqueueResponse reports the queued task
type EnqueueResponse struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
	Type   string `json:"type"`
}

func decodeBody(c fiber.Ctx, v any) error {
	body := c.Body()
	if len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, v); err != nil {
		return ErrInvalidBody
	}

	return nil
}

func (s *Server) enqueued(c fiber.Ctx, info *asynq.TaskInfo, err error) error {
	if err != nil {
		if errors.Is(err, tasks.ErrAlreadyQueued) {
			return ErrAlreadyQueued
		}

		s.log.WithError(err).Error("Failed to enqueue task")

		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(EnqueueResponse{
		TaskID: info.ID,
		Queue:  info.Queue,
		Type:   info.Type,
	})
}

// EnqueuePipelineRun handles POST /api/v1/pipeline/runs
func (s *Server) EnqueuePipelineRun(c fiber.Ctx) error {
	if s.queue == nil {
		return ErrQueueDisabled
	}

	var req PipelineRunRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	for _, id := range req.Targets {
		if _, err := s.pipeline.Stage(id); err != nil {
			return ErrStageNotFound
		}
	}

	info, err := s.queue.EnqueuePipeline(tasks.PipelinePayload{
		Targets:    req.Targets,
		Params:     req.Params,
		Trigger:    tasks.TriggerAPI,
		EnqueuedAt: time.Now().UTC(),
	})

	return s.enqueued(c, info, err)
}

// EnqueueStageRun handles POST /api/v1/runs
func (s *Server) EnqueueStageRun(c fiber.Ctx) error {
	if s.queue == nil {
		return ErrQueueDisabled
	}

	var req StageRunRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	st, err := s.pipeline.Stage(req.Stage)
	if err != nil {
		return ErrStageNotFound
	}

	info, err := s.queue.EnqueueStage(tasks.StagePayload{
		Stage:      st.ID,
		Params:     req.Params,
		Trigger:    tasks.TriggerAPI,
		EnqueuedAt: time.Now().UTC(),
	})

	return s.enqueued(c, info, err)
}
