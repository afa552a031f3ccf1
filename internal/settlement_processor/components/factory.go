package components

import (
	"log/slog"

	"github.com/settlement-closer/internal/config"
	"github.com/settlement-closer/internal/domain/outbox"
	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/platform/lock"
	"github.com/settlement-closer/internal/platform/metrics"
	"github.com/settlement-closer/internal/platform/persistence"
	"github.com/settlement-closer/internal/settlement_processor/service"
)

// Repositories groups the stores the finalizer reads from and writes to
type Repositories struct {
	Settlements  settlement.Repository
	Participants settlement.ParticipantRepository
	Expenses     settlement.ExpenseRepository
	Snapshots    settlement.SnapshotRepository
	Outbox       outbox.Repository
}

// CreateFinalizer wires the synchronous finalizer used by the HTTP gateway
func CreateFinalizer(
	txRunner persistence.TxRunner,
	repos Repositories,
	locker lock.Locker,
	closeMetrics *metrics.CloseMetrics,
	logger *slog.Logger,
) *service.FinalizerImpl {
	gate := NewOwnerGate(repos.Settlements, logger.With("component", "authorization_gate"))
	validator := NewClosingValidator(
		gate,
		repos.Settlements,
		NewParticipantReader(repos.Participants),
		logger.With("component", "closing_validator"),
	)
	store := NewSnapshotStore(
		txRunner,
		repos.Settlements,
		repos.Snapshots,
		repos.Outbox,
		logger.With("component", "snapshot_store"),
	)

	return service.NewFinalizer(
		validator,
		NewExpenseReader(repos.Expenses),
		store,
		locker,
		closeMetrics,
		logger.With("component", "finalizer"),
	)
}

// CreatePooledFinalizer wraps the finalizer in a worker pool for the Kafka consumer.
// It falls back to the plain finalizer if the pool cannot be created.
func CreatePooledFinalizer(
	txRunner persistence.TxRunner,
	repos Repositories,
	locker lock.Locker,
	closeMetrics *metrics.CloseMetrics,
	logger *slog.Logger,
	cfg *config.Config,
) service.Finalizer {
	base := CreateFinalizer(txRunner, repos, locker, closeMetrics, logger)

	pooled, err := service.NewWorkerPoolFinalizer(
		base,
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		logger.Error("Failed to create worker pool finalizer, falling back to base finalizer", "error", err)
		return base
	}

	logger.Info("Created worker pool finalizer", "pool_size", cfg.WorkerPool.Size)
	return pooled
}
