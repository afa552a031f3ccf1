package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/settlement_processor/service"
)

type ClosingValidatorImpl struct {
	gate           service.AuthorizationGate
	settlementRepo settlement.Repository
	participants   service.ParticipantReader
	logger         *slog.Logger
}

func NewClosingValidator(
	gate service.AuthorizationGate,
	settlementRepo settlement.Repository,
	participants service.ParticipantReader,
	logger *slog.Logger,
) service.ClosingValidator {
	return &ClosingValidatorImpl{
		gate:           gate,
		settlementRepo: settlementRepo,
		participants:   participants,
		logger:         logger,
	}
}

// Validate runs authorization, the open check and the participant check in
// that order and stops at the first failure. It does not write anything.
func (v *ClosingValidatorImpl) Validate(ctx context.Context, cmd service.CloseCommand) (*service.ClosingContext, error) {
	logger := v.logger.With("settlement_id", cmd.SettlementID.String())
	if cmd.CorrelationID != "" {
		logger = logger.With("correlation_id", cmd.CorrelationID)
	}

	if err := Authorize(ctx, v.gate, cmd.SettlementID, cmd.UserID); err != nil {
		return nil, err
	}

	s, err := v.settlementRepo.GetByID(ctx, cmd.SettlementID)
	if err != nil {
		return nil, fmt.Errorf("load settlement: %w", err)
	}
	if !s.IsOpen() {
		logger.Debug("Settlement is not open", "status", s.Status)
		return nil, settlement.ErrSettlementClosed{SettlementID: cmd.SettlementID}
	}

	ids, err := v.participants.ListParticipantIDs(ctx, cmd.SettlementID)
	if err != nil {
		logger.Error("Failed to list participants", "error", err)
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if len(ids) == 0 {
		return nil, settlement.ErrNoParticipants{SettlementID: cmd.SettlementID}
	}

	return &service.ClosingContext{Settlement: s, ParticipantIDs: ids}, nil
}
