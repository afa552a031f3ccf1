package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/settlement-closer/internal/api_gateway"
	"github.com/settlement-closer/internal/api_gateway/service"
	"github.com/settlement-closer/internal/config"
	"github.com/settlement-closer/internal/data/mongo"
	"github.com/settlement-closer/internal/data/postgres"
	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/logger"
	"github.com/settlement-closer/internal/platform/lock"
	"github.com/settlement-closer/internal/platform/messaging/producers"
	"github.com/settlement-closer/internal/platform/metrics"
	"github.com/settlement-closer/internal/platform/persistence"
	"github.com/settlement-closer/internal/settlement_processor/components"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context; the Postgres pool applies pending migrations first
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	// The archive only serves snapshot reads; Postgres answers when it is missing
	var archive settlement.SnapshotArchive
	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Warn("MongoDB unavailable, snapshot reads will use PostgreSQL only", "error", err)
	} else {
		archive = mongo.NewSnapshotArchiveRepository(log, mongoDB.Database())
	}

	// Advisory close lock, disabled without REDIS_ADDR
	var locker lock.Locker = lock.NoopLocker{}
	var redisClient *redis.Client
	if cfg.Redis.LockEnabled() {
		redisClient, err = persistence.NewRedisClient(appCtx, log, &cfg.Redis)
		if err != nil {
			log.Warn("Redis unavailable, closing without advisory lock", "error", err)
		} else {
			locker = lock.NewRedisLocker(redisClient, lock.Options{
				Expiry:     cfg.Redis.LockExpiry,
				Tries:      cfg.Redis.LockTries,
				RetryDelay: cfg.Redis.LockRetryDelay,
			}, log)
		}
	}

	// Initialize Kafka producer for asynchronous close requests
	kafkaProducer, err := producers.NewCloseRequestProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize close request Kafka producer", "error", err)
		os.Exit(1)
	}

	registry := metrics.NewRegistry()

	// Initialize repositories
	settlementRepo := postgres.NewSettlementRepository(log, postgresDB)
	snapshotRepo := postgres.NewSnapshotRepository(log, postgresDB)
	repos := components.Repositories{
		Settlements:  settlementRepo,
		Participants: postgres.NewParticipantRepository(log, postgresDB),
		Expenses:     postgres.NewExpenseRepository(log, postgresDB),
		Snapshots:    snapshotRepo,
		Outbox:       postgres.NewOutboxRepository(log, postgresDB),
	}

	// Initialize services
	finalizer := components.CreateFinalizer(postgresDB, repos, locker, metrics.NewCloseMetrics(registry), log)
	settlementService := service.NewSettlementService(
		log,
		finalizer,
		components.NewOwnerGate(settlementRepo, log.With("component", "authorization_gate")),
		snapshotRepo,
		archive,
		kafkaProducer,
	)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, settlementService, registry)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Drain HTTP first so in-flight closes can still commit
	var shutdownErr error
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
		shutdownErr = err
	}

	cancelAppCtx()

	if err := kafkaProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
		shutdownErr = err
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing Redis client", "error", err)
			shutdownErr = err
		}
	}

	if mongoDB != nil {
		if err := mongoDB.Close(shutdownCtx); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
			shutdownErr = err
		}
	}

	postgresDB.Close()

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if shutdownErr != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
