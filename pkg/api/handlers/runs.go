package handlers

import (
	"errors"
	"strconv"

	"github.com/ethpandaops/medallion/pkg/admin"
	"github.com/gofiber/fiber/v3"
)

const defaultRunLimit = 50

// ListRuns handles GET /api/v1/runs?limit=N, newest first
func (s *Server) ListRuns(c fiber.Ctx) error {
	limit := defaultRunLimit

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return ErrInvalidLimit
		}

		limit = n
	}

	runs, err := s.ledger.List(c.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		return err
	}

	if runs == nil {
		runs = []admin.Run{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"runs":  runs,
		"total": len(runs),
	})
}

// GetRun handles GET /api/v1/runs/:id
func (s *Server) GetRun(c fiber.Ctx) error {
	run, err := s.ledger.Get(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, admin.ErrRunNotFound) || errors.Is(err, admin.ErrEmptyRunID) {
			return ErrRunNotFound
		}

		return err
	}

	return c.Status(fiber.StatusOK).JSON(run)
}
