package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/domain/shared"
	"github.com/settlement-closer/internal/platform/messaging/producers"
	"github.com/settlement-closer/internal/settlement_processor/components"
	processor "github.com/settlement-closer/internal/settlement_processor/service"
)

// SettlementServiceImpl implements the SettlementService interface
type SettlementServiceImpl struct {
	finalizer processor.Finalizer
	gate      processor.AuthorizationGate
	snapshots settlement.SnapshotRepository
	archive   settlement.SnapshotArchive
	producer  producers.CloseRequestPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewSettlementService creates a new settlement service. archive may be nil,
// in which case snapshots are read from Postgres only.
func NewSettlementService(
	logger *slog.Logger,
	finalizer processor.Finalizer,
	gate processor.AuthorizationGate,
	snapshots settlement.SnapshotRepository,
	archive settlement.SnapshotArchive,
	producer producers.CloseRequestPublisher,
) SettlementService {
	return &SettlementServiceImpl{
		finalizer: finalizer,
		gate:      gate,
		snapshots: snapshots,
		archive:   archive,
		producer:  producer,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *SettlementServiceImpl) CloseSettlement(ctx context.Context, settlementID uuid.UUID, userID, correlationID string) (*settlement.CloseOutcome, error) {
	return s.finalizer.Close(ctx, processor.CloseCommand{
		SettlementID:  settlementID,
		UserID:        userID,
		CorrelationID: correlationID,
	})
}

// RequestClose authorizes before publishing. Nothing is queued for a caller
// that may not close the settlement.
func (s *SettlementServiceImpl) RequestClose(ctx context.Context, settlementID uuid.UUID, userID, correlationID string) (*shared.CloseRequest, error) {
	if err := components.Authorize(ctx, s.gate, settlementID, userID); err != nil {
		return nil, err
	}

	request := &shared.CloseRequest{
		RequestID:     uuid.New(),
		SettlementID:  settlementID,
		UserID:        userID,
		CorrelationID: correlationID,
		Timestamp:     s.now().UTC(),
	}

	if err := s.producer.PublishCloseRequest(ctx, request); err != nil {
		s.logger.Error("Failed to publish close request",
			"settlement_id", settlementID.String(),
			"request_id", request.RequestID.String(),
			"correlation_id", correlationID,
			"error", err,
		)
		return nil, err
	}

	s.logger.Info("Close request published",
		"settlement_id", settlementID.String(),
		"request_id", request.RequestID.String(),
		"correlation_id", correlationID,
	)
	return request, nil
}

// GetSnapshot prefers the document archive and falls back to Postgres, which
// holds the snapshot as soon as the close commits.
func (s *SettlementServiceImpl) GetSnapshot(ctx context.Context, settlementID uuid.UUID, userID string) (*settlement.Snapshot, error) {
	if err := components.Authorize(ctx, s.gate, settlementID, userID); err != nil {
		return nil, err
	}

	if s.archive != nil {
		snap, err := s.archive.GetBySettlementID(ctx, settlementID)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, settlement.ErrSnapshotNotFound{}) {
			s.logger.Warn("Snapshot archive read failed, falling back to Postgres",
				"settlement_id", settlementID.String(),
				"error", err,
			)
		}
	}

	return s.snapshots.GetBySettlementID(ctx, settlementID)
}
