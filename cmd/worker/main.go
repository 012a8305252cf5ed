package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/amai2222/shipment-data-view-sub002/internal/config"
	"github.com/amai2222/shipment-data-view-sub002/internal/database"
	"github.com/amai2222/shipment-data-view-sub002/internal/importer"
	"github.com/amai2222/shipment-data-view-sub002/internal/repository"
	"github.com/amai2222/shipment-data-view-sub002/internal/service"
	"github.com/amai2222/shipment-data-view-sub002/internal/utils"
	"github.com/amai2222/shipment-data-view-sub002/internal/worker"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := utils.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)

	// Initialize database
	db, err := database.NewDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Redis
	redisClient, err := database.NewRedis(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	strictness, err := importer.ParseMatchStrictness(cfg.MatchStrictness)
	if err != nil {
		log.Fatalf("Invalid IMPORT_MATCH_STRICTNESS: %v", err)
	}
	engine := importer.NewEngine(repository.NewShipmentRepository(db), importer.DefaultAliasTable(), importer.Options{
		Strictness:  strictness,
		Concurrency: cfg.MatchConcurrency,
	}, logger)
	sessionRepo := repository.NewImportSessionRepository(redisClient, cfg.SessionTTL)
	importService := service.NewImportService(engine, service.NewExcelService(), sessionRepo, nil, logger)

	// Create Asynq server
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.AsynqRedisAddr,
			Password: cfg.AsynqRedisPassword,
			DB:       cfg.AsynqRedisDB,
		},
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.WithError(err).WithField("task", task.Type()).Error("Task failed")
			}),
		},
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	worker.RegisterHandlers(mux, importService, logger)

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Println("\nGracefully shutting down worker...")
		srv.Shutdown()
	}()

	// Start worker
	log.Printf("Worker starting with concurrency: %d", cfg.WorkerConcurrency)
	if err := srv.Run(mux); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	fmt.Println("Worker exited")
}
