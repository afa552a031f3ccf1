// Package postgres provides PostgreSQL implementations of the domain repositories.
// Settlement, participant and expense rows are owned by the CRUD layer; this
// package only reads them, and writes the close transition, snapshots and outbox rows.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/platform/persistence"
)

// SettlementRepository implements the settlement.Repository interface for PostgreSQL
type SettlementRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

func NewSettlementRepository(logger *slog.Logger, db *persistence.PostgresDB) settlement.Repository {
	return &SettlementRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx so the close transition can share a
// transaction with the snapshot and outbox writes.
func (r *SettlementRepository) WithTx(tx pgx.Tx) settlement.Repository {
	return &SettlementRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// GetByID retrieves a live settlement. Soft-deleted settlements are reported as not found.
func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error) {
	query := `
		SELECT id, owner_id, name, status, version, closed_at, created_at, updated_at
		FROM settlements
		WHERE id = $1 AND deleted_at IS NULL
	`

	var (
		s      settlement.Settlement
		status string
	)
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.OwnerID,
		&s.Name,
		&status,
		&s.Version,
		&s.ClosedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrSettlementNotFound{SettlementID: id}
		}
		r.logger.Error("Failed to get settlement", "settlement_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	s.Status = settlement.Status(status)

	return &s, nil
}

// MarkClosed performs the compare-and-set open to closed transition. Zero affected
// rows means another writer closed the settlement or bumped its version first.
func (r *SettlementRepository) MarkClosed(ctx context.Context, id uuid.UUID, expectedVersion int, closedAt time.Time) error {
	query := `
		UPDATE settlements
		SET status = 'closed', closed_at = $1, version = version + 1, updated_at = $1
		WHERE id = $2 AND status = 'open' AND version = $3
	`

	result, err := r.querier.Exec(ctx, query, closedAt, id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to close settlement", "settlement_id", id.String(), "error", err)
		return fmt.Errorf("failed to close settlement: %w", err)
	}

	if result.RowsAffected() == 0 {
		return settlement.ErrConcurrentModification{SettlementID: id}
	}

	return nil
}
