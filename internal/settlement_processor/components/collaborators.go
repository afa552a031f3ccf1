package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/settlement_processor/service"
)

// ExpenseReaderImpl adapts the expense repository to service.ExpenseReader
type ExpenseReaderImpl struct {
	expenseRepo settlement.ExpenseRepository
}

func NewExpenseReader(expenseRepo settlement.ExpenseRepository) service.ExpenseReader {
	return &ExpenseReaderImpl{expenseRepo: expenseRepo}
}

func (r *ExpenseReaderImpl) ListExpenses(ctx context.Context, settlementID uuid.UUID) ([]settlement.Expense, error) {
	return r.expenseRepo.ListBySettlement(ctx, settlementID)
}

// ParticipantReaderImpl adapts the participant repository to service.ParticipantReader
type ParticipantReaderImpl struct {
	participantRepo settlement.ParticipantRepository
}

func NewParticipantReader(participantRepo settlement.ParticipantRepository) service.ParticipantReader {
	return &ParticipantReaderImpl{participantRepo: participantRepo}
}

func (r *ParticipantReaderImpl) ListParticipantIDs(ctx context.Context, settlementID uuid.UUID) ([]settlement.ParticipantID, error) {
	return r.participantRepo.ListIDs(ctx, settlementID)
}

// OwnerGate lets only the settlement owner close it
type OwnerGate struct {
	settlementRepo settlement.Repository
	logger         *slog.Logger
}

func NewOwnerGate(settlementRepo settlement.Repository, logger *slog.Logger) *OwnerGate {
	return &OwnerGate{
		settlementRepo: settlementRepo,
		logger:         logger,
	}
}

func (g *OwnerGate) CanClose(ctx context.Context, settlementID uuid.UUID, userID string) (bool, error) {
	s, err := g.settlementRepo.GetByID(ctx, settlementID)
	if err != nil {
		return false, err
	}
	allowed := s.CanBeClosedBy(userID)
	if !allowed {
		g.logger.Debug("Close denied for non-owner", "settlement_id", settlementID.String(), "user_id", userID)
	}
	return allowed, nil
}

// Authorize is CanClose with the denial turned into ErrNotPermitted
func Authorize(ctx context.Context, gate service.AuthorizationGate, settlementID uuid.UUID, userID string) error {
	ok, err := gate.CanClose(ctx, settlementID, userID)
	if err != nil {
		return fmt.Errorf("authorize close: %w", err)
	}
	if !ok {
		return settlement.ErrNotPermitted{SettlementID: settlementID, UserID: userID}
	}
	return nil
}
