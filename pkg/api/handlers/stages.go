package handlers

import (
	"github.com/ethpandaops/medallion/pkg/dependencies"
	"github.com/gofiber/fiber/v3"
)

// StageResponse describes one stage and its position in the graph
type StageResponse struct {
	ID           string   `json:"id"`
	Layer        string   `json:"layer"`
	Table        string   `json:"table"`
	Dependencies []string `json:"dependencies"`
	Dependents   []string `json:"dependents"`
}

func (s *Server) stageResponse(id string) (StageResponse, error) {
	st, err := s.pipeline.Stage(id)
	if err != nil {
		return StageResponse{}, ErrStageNotFound
	}

	graph := s.pipeline.Graph()

	return StageResponse{
		ID:           st.ID,
		Layer:        st.Layer,
		Table:        st.Table(),
		Dependencies: nonNil(graph.GetDependencies(st.ID)),
		Dependents:   nonNil(graph.GetDependents(st.ID)),
	}, nil
}

// ListStages handles GET /api/v1/stages
func (s *Server) ListStages(c fiber.Ctx) error {
	stages := s.pipeline.Stages()
	out := make([]StageResponse, 0, len(stages))

	for _, st := range stages {
		resp, err := s.stageResponse(st.ID)
		if err != nil {
			return err
		}

		out = append(out, resp)
	}

	return c.Status(fiber.StatusOK).JSON(struct {
		Stages []StageResponse       `json:"stages"`
		DAG    *dependencies.DAGInfo `json:"dag"`
		Total  int                   `json:"total"`
	}{
		Stages: out,
		DAG:    s.pipeline.Graph().GetDAGInfo(),
		Total:  len(out),
	})
}

// GetStage handles GET /api/v1/stages/{id}; stage IDs may contain "/"
func (s *Server) GetStage(c fiber.Ctx) error {
	resp, err := s.stageResponse(c.Params("*"))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}

	return ids
}
