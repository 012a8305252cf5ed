package router

import (
	"github.com/amai2222/shipment-data-view-sub002/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

func Setup(app *fiber.App, db *sqlx.DB, redis *redis.Client, cfg *config.Config) {
	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"app":    cfg.AppName,
		})
	})

	// API routes (JSON)
	api := app.Group("/api/v1")
	SetupAPIRoutes(api, db, redis, cfg)
}
