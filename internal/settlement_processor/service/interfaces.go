package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/settlement-closer/internal/domain/settlement"
)

// CloseCommand asks for a settlement to be closed on behalf of a user
type CloseCommand struct {
	SettlementID  uuid.UUID
	UserID        string
	CorrelationID string
}

// Finalizer closes settlements. Calling Close again for a closed settlement
// returns the stored snapshot with Replayed set.
type Finalizer interface {
	Close(ctx context.Context, cmd CloseCommand) (*settlement.CloseOutcome, error)
}

// ExpenseReader lists the live expenses of a settlement
type ExpenseReader interface {
	ListExpenses(ctx context.Context, settlementID uuid.UUID) ([]settlement.Expense, error)
}

// ParticipantReader lists the ids of a settlement's participants
type ParticipantReader interface {
	ListParticipantIDs(ctx context.Context, settlementID uuid.UUID) ([]settlement.ParticipantID, error)
}

// AuthorizationGate decides who may close a settlement. A missing settlement
// is reported as settlement.ErrSettlementNotFound.
type AuthorizationGate interface {
	CanClose(ctx context.Context, settlementID uuid.UUID, userID string) (bool, error)
}

// ClosingContext carries what validation loaded for the later steps
type ClosingContext struct {
	Settlement     *settlement.Settlement
	ParticipantIDs []settlement.ParticipantID
}

// ClosingValidator checks authorization, status and participants, in that order
type ClosingValidator interface {
	Validate(ctx context.Context, cmd CloseCommand) (*ClosingContext, error)
}

// TransitionRequest is everything written by the single close transaction
type TransitionRequest struct {
	SettlementID    uuid.UUID
	ExpectedVersion int
	Balances        settlement.BalanceMap
	Transfers       []settlement.Transfer
	ClosedAt        time.Time
	CorrelationID   string
}

// TransitionResult reports whether this call performed the transition
type TransitionResult struct {
	Applied  bool
	Snapshot *settlement.Snapshot
}

// SnapshotStore performs the atomic open-to-closed transition together with the snapshot write
type SnapshotStore interface {
	TryTransitionAndPersist(ctx context.Context, req TransitionRequest) (*TransitionResult, error)
	GetSnapshot(ctx context.Context, settlementID uuid.UUID) (*settlement.Snapshot, error)
}
