// Package tasks provides task queue management using Asynq
package tasks

import (
	"time"

	"github.com/ethpandaops/medallion/pkg/pipeline"
)

const (
	// TypeStageRun is the task type for a single stage run
	TypeStageRun = "medallion:stage"
	// TypePipelineRun is the task type for a pipeline run
	TypePipelineRun = "medallion:pipeline"
)

// Triggers recorded with every enqueued task
const (
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
)

// StagePayload is the payload of a stage run task
type StagePayload struct {
	Stage      string          `json:"stage"`
	Params     pipeline.Params `json:"params"`
	Trigger    string          `json:"trigger"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// UniqueID returns the task ID. A stage is queued at most once at a time.
func (p StagePayload) UniqueID() string {
	return "stage:" + p.Stage
}

// PipelinePayload is the payload of a pipeline run task. An empty Targets
// runs every stage.
type PipelinePayload struct {
	Targets    []string        `json:"targets,omitempty"`
	Params     pipeline.Params `json:"params"`
	Trigger    string          `json:"trigger"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// UniqueID returns the task ID. One pipeline run is queued at a time.
func (PipelinePayload) UniqueID() string {
	return "pipeline"
}
