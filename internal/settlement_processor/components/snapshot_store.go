package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/settlement-closer/internal/domain/outbox"
	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/domain/shared"
	"github.com/settlement-closer/internal/platform/persistence"
	"github.com/settlement-closer/internal/settlement_processor/service"
)

// SnapshotStoreImpl writes the status transition, the snapshot and the outbox
// event in one Postgres transaction.
type SnapshotStoreImpl struct {
	txRunner       persistence.TxRunner
	settlementRepo settlement.Repository
	snapshotRepo   settlement.SnapshotRepository
	outboxRepo     outbox.Repository
	logger         *slog.Logger
}

func NewSnapshotStore(
	txRunner persistence.TxRunner,
	settlementRepo settlement.Repository,
	snapshotRepo settlement.SnapshotRepository,
	outboxRepo outbox.Repository,
	logger *slog.Logger,
) service.SnapshotStore {
	return &SnapshotStoreImpl{
		txRunner:       txRunner,
		settlementRepo: settlementRepo,
		snapshotRepo:   snapshotRepo,
		outboxRepo:     outboxRepo,
		logger:         logger,
	}
}

// TryTransitionAndPersist reports Applied=false without error when another
// writer closed the settlement first. Nothing is written in that case.
func (s *SnapshotStoreImpl) TryTransitionAndPersist(ctx context.Context, req service.TransitionRequest) (*service.TransitionResult, error) {
	logger := s.logger.With("settlement_id", req.SettlementID.String())
	if req.CorrelationID != "" {
		logger = logger.With("correlation_id", req.CorrelationID)
	}

	snap := settlement.NewSnapshot(req.SettlementID, req.Balances, req.Transfers, req.ClosedAt)

	err := s.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if err := s.settlementRepo.WithTx(tx).MarkClosed(ctx, req.SettlementID, req.ExpectedVersion, req.ClosedAt); err != nil {
			return err
		}

		if err := s.snapshotRepo.WithTx(tx).Create(ctx, snap); err != nil {
			return err
		}

		msg, err := outbox.NewMessage(shared.NewSettlementClosedEvent(snap, req.CorrelationID))
		if err != nil {
			return fmt.Errorf("failed to build outbox message: %w", err)
		}
		return s.outboxRepo.WithTx(tx).Create(ctx, msg)
	})
	if err != nil {
		if errors.Is(err, settlement.ErrConcurrentModification{}) {
			logger.Info("Close transition lost to a concurrent writer", "expected_version", req.ExpectedVersion)
			return &service.TransitionResult{Applied: false}, nil
		}
		logger.Error("Close transaction failed", "error", err)
		return nil, err
	}

	logger.Info("Close transaction committed", "transfers", len(snap.Transfers))
	return &service.TransitionResult{Applied: true, Snapshot: snap}, nil
}

func (s *SnapshotStoreImpl) GetSnapshot(ctx context.Context, settlementID uuid.UUID) (*settlement.Snapshot, error) {
	return s.snapshotRepo.GetBySettlementID(ctx, settlementID)
}
