package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/settlement-closer/internal/config"
	"github.com/settlement-closer/internal/data/mongo"
	"github.com/settlement-closer/internal/data/postgres"
	"github.com/settlement-closer/internal/logger"
	"github.com/settlement-closer/internal/platform/lock"
	"github.com/settlement-closer/internal/platform/messaging/consumers"
	"github.com/settlement-closer/internal/platform/messaging/producers"
	"github.com/settlement-closer/internal/platform/metrics"
	"github.com/settlement-closer/internal/platform/persistence"
	"github.com/settlement-closer/internal/settlement_processor/components"
	"github.com/settlement-closer/internal/settlement_processor/consumer"
	"github.com/settlement-closer/internal/settlement_processor/outbox_poller"
	"github.com/settlement-closer/internal/settlement_processor/service"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("settlement_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Settlement Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	archive := mongo.NewSnapshotArchiveRepository(log, mongoDB.Database())
	if err := archive.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create snapshot archive indexes", "error", err)
		os.Exit(1)
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

	registry := metrics.NewRegistry()

	// Initialize repositories
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	repos := components.Repositories{
		Settlements:  postgres.NewSettlementRepository(log, postgresDB),
		Participants: postgres.NewParticipantRepository(log, postgresDB),
		Expenses:     postgres.NewExpenseRepository(log, postgresDB),
		Snapshots:    postgres.NewSnapshotRepository(log, postgresDB),
		Outbox:       outboxRepo,
	}

	// Initialize Kafka consumer
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// dlqProducer is nil when no DLQ topic is configured
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}

	eventProducer, err := producers.NewSettlementEventProducer(appCtx, log, &cfg.Kafka, cfg.Breaker)
	if err != nil {
		log.Error("Failed to initialize settlement event Kafka producer", "error", err)
		os.Exit(1)
	}

	finalizer := components.CreatePooledFinalizer(
		postgresDB,
		repos,
		locker,
		metrics.NewCloseMetrics(registry),
		log,
		cfg,
	)

	closeRequestHandler := consumer.NewCloseRequestHandler(
		log.With("component", "close_request_handler"),
		finalizer,
		deadLetters,
	)

	// Initialize outbox poller
	snapshotPublisher := outbox_poller.NewSnapshotEventPublisher(
		outboxRepo,
		archive,
		eventProducer,
		log.With("component", "snapshot_event_publisher"),
	)
	poller := outbox_poller.NewPoller(
		&cfg.Outbox,
		outboxRepo,
		snapshotPublisher,
		metrics.NewOutboxMetrics(registry),
		log.With("component", "outbox_poller"),
	)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(registry))
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	// Create error channel for service errors
	errChan := make(chan error, 3)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer; Subscribe returns once the fetch loop is running
	log.Info("Starting Kafka consumer",
		"topic", cfg.Kafka.CloseRequestTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := kafkaConsumer.Subscribe(appCtx, cfg.Kafka.CloseRequestTopic, cfg.Kafka.ConsumerGroup, closeRequestHandler.HandleMessage); err != nil {
		errChan <- fmt.Errorf("kafka consumer error: %w", err)
	}

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	if metricsServer != nil {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Wait for the fetch loop and the poller to stop
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		<-kafkaConsumer.Done()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// Release the worker pool once no more tasks can be submitted
	if pooled, ok := finalizer.(*service.WorkerPoolFinalizer); ok {
		log.Info("Shutting down worker pool", "running_workers", pooled.Running())
		pooled.Shutdown()
	}

	var shutdownErr error
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Error stopping metrics server", "error", err)
			shutdownErr = err
		}
	}

	if dlqProducer != nil {
		if err := dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
			shutdownErr = err
		}
	}

	if err := eventProducer.Close(); err != nil {
		log.Error("Error closing settlement event Kafka producer", "error", err)
		shutdownErr = err
	}

	if err := kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
		shutdownErr = err
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing Redis client", "error", err)
			shutdownErr = err
		}
	}

	postgresDB.Close()

	if err := mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
		shutdownErr = err
	}

	// Final status
	if serviceErr != nil {
		log.Error("Settlement Processor shutdown with errors", "error", serviceErr)
	}
	if shutdownErr != nil {
		log.Error("Settlement Processor shutdown completed with errors")
	} else {
		log.Info("Settlement Processor shutdown completed successfully")
	}
}
