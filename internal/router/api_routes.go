package router

import (
	"github.com/amai2222/shipment-data-view-sub002/internal/config"
	"github.com/amai2222/shipment-data-view-sub002/internal/handler"
	"github.com/amai2222/shipment-data-view-sub002/internal/importer"
	"github.com/amai2222/shipment-data-view-sub002/internal/middleware"
	"github.com/amai2222/shipment-data-view-sub002/internal/repository"
	"github.com/amai2222/shipment-data-view-sub002/internal/service"
	"github.com/amai2222/shipment-data-view-sub002/internal/utils"
	"github.com/amai2222/shipment-data-view-sub002/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

func SetupAPIRoutes(
	router fiber.Router,
	db *sqlx.DB,
	redis *redis.Client,
	cfg *config.Config,
) {
	logger := utils.GetLogger()

	// Initialize repositories
	shipmentRepo := repository.NewShipmentRepository(db)
	sessionRepo := repository.NewImportSessionRepository(redis, cfg.SessionTTL)

	// Initialize services
	strictness, err := importer.ParseMatchStrictness(cfg.MatchStrictness)
	if err != nil {
		logger.WithError(err).Warn("Falling back to route matching")
		strictness = importer.MatchRoute
	}
	engine := importer.NewEngine(shipmentRepo, importer.DefaultAliasTable(), importer.Options{
		Strictness:  strictness,
		Concurrency: cfg.MatchConcurrency,
	}, logger)

	// Runs are applied by the worker when async apply is enabled, inline otherwise
	var queue service.TaskQueue
	if cfg.ApplyAsync {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.AsynqRedisAddr,
			Password: cfg.AsynqRedisPassword,
			DB:       cfg.AsynqRedisDB,
		})
		queue = worker.NewAsynqQueue(asynqClient)
	}
	importService := service.NewImportService(engine, service.NewExcelService(), sessionRepo, queue, logger)

	// Initialize handlers
	importHandler := handler.NewImportHandler(importService, cfg.UploadPath, cfg.UploadMaxSize)

	// Protected routes
	protected := router.Group("", middleware.AuthMiddleware(cfg))
	handler.RegisterImportRoutes(protected, importHandler)
}
