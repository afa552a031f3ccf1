package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository reads settlements and performs the one-time close transition
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Settlement, error)

	// MarkClosed moves an open settlement to closed using optimistic locking.
	// It returns ErrConcurrentModification when the row is no longer open at expectedVersion.
	MarkClosed(ctx context.Context, id uuid.UUID, expectedVersion int, closedAt time.Time) error
	WithTx(tx pgx.Tx) Repository
}

// ParticipantRepository lists the members of a settlement
type ParticipantRepository interface {
	ListIDs(ctx context.Context, settlementID uuid.UUID) ([]ParticipantID, error)
	List(ctx context.Context, settlementID uuid.UUID) ([]Participant, error)
}

// ExpenseRepository lists the live expenses of a settlement with their share sets
type ExpenseRepository interface {
	ListBySettlement(ctx context.Context, settlementID uuid.UUID) ([]Expense, error)
}

// SnapshotRepository persists close snapshots
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot *Snapshot) error
	GetBySettlementID(ctx context.Context, settlementID uuid.UUID) (*Snapshot, error)
	WithTx(tx pgx.Tx) SnapshotRepository
}

// SnapshotArchive keeps a document copy of every published snapshot
type SnapshotArchive interface {
	Upsert(ctx context.Context, snapshot *Snapshot) error
	GetBySettlementID(ctx context.Context, settlementID uuid.UUID) (*Snapshot, error)
}
