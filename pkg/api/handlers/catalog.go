package handlers

import (
	"errors"

	"github.com/ethpandaops/medallion/pkg/catalog"
	"github.com/gofiber/fiber/v3"
)

// ListCatalog handles GET /api/v1/catalog
func (s *Server) ListCatalog(c fiber.Ctx) error {
	entries, err := s.catalog.List(c.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list catalog")
		return err
	}

	if entries == nil {
		entries = []catalog.Entry{}
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"tables": entries,
		"total":  len(entries),
	})
}

// GetCatalogEntry handles GET /api/v1/catalog/:name
func (s *Server) GetCatalogEntry(c fiber.Ctx) error {
	entry, err := s.catalog.Lookup(c.Context(), c.Params("name"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotRegistered) || errors.Is(err, catalog.ErrEmptyName) {
			return ErrTableNotFound
		}

		return err
	}

	return c.Status(fiber.StatusOK).JSON(entry)
}
