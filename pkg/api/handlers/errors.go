package handlers

import "github.com/gofiber/fiber/v3"

var (
	// ErrStageNotFound is returned when a stage ID is unknown
	ErrStageNotFound = fiber.NewError(fiber.StatusNotFound, "stage not found")
	// ErrRunNotFound is returned when a run ID is unknown
	ErrRunNotFound = fiber.NewError(fiber.StatusNotFound, "run not found")
	// ErrTableNotFound is returned when a logical table name is not registered
	ErrTableNotFound = fiber.NewError(fiber.StatusNotFound, "table not registered")
	// ErrInvalidLimit is returned when the limit query parameter is not a positive integer
	ErrInvalidLimit = fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
	// ErrInvalidBody is returned when a request body is not valid JSON
	ErrInvalidBody = fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	// ErrAlreadyQueued is returned when the same run is already queued or running
	ErrAlreadyQueued = fiber.NewError(fiber.StatusConflict, "run already queued")
	// ErrQueueDisabled is returned when no task queue is configured
	ErrQueueDisabled = fiber.NewError(fiber.StatusServiceUnavailable, "task queue not configured")
)
