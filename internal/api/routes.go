package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow-dispatch/internal/api/handlers"
	"github.com/maheshrc27/postflow-dispatch/internal/api/middleware"
)

func SetupRoutes(app *fiber.App, auth *middleware.AuthMiddleware, posts *handlers.PostHandler, health *handlers.HealthHandler) {
	app.Get("/healthz", health.Healthz)
	app.Get("/metrics", handlers.MetricsHandler())

	api := app.Group("/api")
	api.Use(auth.AuthMiddleware())

	api.Post("/posts/:id/publish", posts.PublishNow)
	api.Get("/posts/:id", posts.GetStatus)
	api.Get("/posts/:id/events", posts.GetEvents)
	api.Post("/posts/:id/cancel", posts.Cancel)
}
