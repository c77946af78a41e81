package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// Register mounts the webhook endpoints, the build API, health and metrics.
func Register(app *fiber.App, webhooks *WebhookHandler, builds *BuildsHandler, metrics http.Handler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	if metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(metrics))
	}

	// Both spellings are in use by existing hook configurations.
	app.Post("/webhook/github", webhooks.GitHub)
	app.Post("/github/webhook", webhooks.GitHub)
	app.Post("/webhook/gitlab", webhooks.GitLab)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/builds/:id", builds.GetBuild)
	v1.Get("/builds/:id/logs", builds.GetBuildLogs)
	v1.Get("/workers", builds.ListWorkers)
}
