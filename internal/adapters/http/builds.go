package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse/internal/core/ports"
)

// BuildsHandler serves build status, logs and worker liveness.
type BuildsHandler struct {
	store      ports.LogStore
	heartbeats ports.Heartbeats
}

func NewBuildsHandler(store ports.LogStore, heartbeats ports.Heartbeats) *BuildsHandler {
	return &BuildsHandler{store: store, heartbeats: heartbeats}
}

func (h *BuildsHandler) GetBuild(c *fiber.Ctx) error {
	id := c.Params("id")
	st, err := h.store.Status(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if st == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Build not found",
		})
	}
	return c.JSON(st)
}

func (h *BuildsHandler) GetBuildLogs(c *fiber.Ctx) error {
	id := c.Params("id")
	lines, err := h.store.Logs(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if lines == nil {
		lines = []string{}
	}
	return c.JSON(fiber.Map{
		"id":        id,
		"build_log": lines,
	})
}

func (h *BuildsHandler) ListWorkers(c *fiber.Ctx) error {
	workers, err := h.heartbeats.Workers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if workers == nil {
		workers = []ports.WorkerInfo{}
	}
	return c.JSON(workers)
}
