package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/keymeter/keymeter/internal/services/middleware"
)

// RegisterRoutes wires the public surface of the gateway onto app.
func RegisterRoutes(app *fiber.App, keys *KeyHandler, meter *MeterHandler, health *HealthHandler) {
	if health != nil {
		app.Get("/health", health.HealthCheck)
	}

	requireKey := middleware.RequireAPIKey(nil)

	v1 := app.Group("/v1")

	v1.Post("/keys", keys.IssueKey)
	v1.Get("/keys", keys.IssueKey)
	v1.Get("/keys/status", requireKey, meter.Status)

	v1.Get("/verify", requireKey, meter.Verify)
	v1.Post("/verify", requireKey, meter.Verify)

	v1.Post("/usage", requireKey, meter.RecordUsage)
}
