// Package handlers implements the HTTP handlers of the medallion API
package handlers

import (
	"github.com/ethpandaops/medallion/pkg/admin"
	"github.com/ethpandaops/medallion/pkg/catalog"
	"github.com/ethpandaops/medallion/pkg/dependencies"
	"github.com/ethpandaops/medallion/pkg/pipeline"
	"github.com/ethpandaops/medallion/pkg/tasks"
	"github.com/gofiber/fiber/v3"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Pipeline exposes the stage graph
type Pipeline interface {
	Stages() []pipeline.Stage
	Stage(id string) (pipeline.Stage, error)
	Graph() *dependencies.DependencyGraph
}

// Enqueuer queues stage and pipeline runs for the worker
type Enqueuer interface {
	EnqueueStage(payload tasks.StagePayload, opts ...asynq.Option) (*asynq.TaskInfo, error)
	EnqueuePipeline(payload tasks.PipelinePayload, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Server holds the dependencies of the request handlers
type Server struct {
	pipeline Pipeline
	ledger   admin.Ledger
	catalog  catalog.Catalog
	queue    Enqueuer
	log      logrus.FieldLogger
}

// NewServer creates a new API server instance. A nil queue disables the
// enqueue endpoints.
func NewServer(p Pipeline, ledger admin.Ledger, cat catalog.Catalog, queue Enqueuer, log logrus.FieldLogger) *Server {
	return &Server{
		pipeline: p,
		ledger:   ledger,
		catalog:  cat,
		queue:    queue,
		log:      log.WithField("component", "api.handlers"),
	}
}

// Register mounts every route on router
func (s *Server) Register(router fiber.Router) {
	router.Get("/stages", s.ListStages)
	router.Get("/stages/*", s.GetStage)
	router.Post("/pipeline/runs", s.EnqueuePipelineRun)
	router.Get("/runs", s.ListRuns)
	router.Post("/runs", s.EnqueueStageRun)
	router.Get("/runs/:id", s.GetRun)
	router.Get("/catalog", s.ListCatalog)
	router.Get("/catalog/:name", s.GetCatalogEntry)
}
