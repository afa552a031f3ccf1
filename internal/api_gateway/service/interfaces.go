package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/domain/shared"
)

// SettlementService defines the settlement operations exposed over HTTP
type SettlementService interface {
	// CloseSettlement closes the settlement synchronously.
	// Returns the stored outcome with Replayed set if it was already closed.
	CloseSettlement(ctx context.Context, settlementID uuid.UUID, userID, correlationID string) (*settlement.CloseOutcome, error)

	// RequestClose checks the caller may close the settlement and queues the close
	// for the settlement processor. Returns the published request.
	RequestClose(ctx context.Context, settlementID uuid.UUID, userID, correlationID string) (*shared.CloseRequest, error)

	// GetSnapshot returns the snapshot of a closed settlement
	// Returns ErrSnapshotNotFound while the settlement is still open
	GetSnapshot(ctx context.Context, settlementID uuid.UUID, userID string) (*settlement.Snapshot, error)
}
