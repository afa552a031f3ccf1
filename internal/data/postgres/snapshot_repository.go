package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/settlement-closer/internal/domain/settlement"
	"github.com/settlement-closer/internal/platform/persistence"
)

// SnapshotRepository stores close snapshots with balances and transfers as JSONB
type SnapshotRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewSnapshotRepository(logger *slog.Logger, db *persistence.PostgresDB) settlement.SnapshotRepository {
	return &SnapshotRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *SnapshotRepository) WithTx(tx pgx.Tx) settlement.SnapshotRepository {
	return &SnapshotRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts the snapshot. The settlement_id primary key rejects a second snapshot.
func (r *SnapshotRepository) Create(ctx context.Context, snap *settlement.Snapshot) error {
	balances, err := json.Marshal(snap.Balances)
	if err != nil {
		return fmt.Errorf("failed to encode balances: %w", err)
	}
	transfers, err := json.Marshal(snap.Transfers)
	if err != nil {
		return fmt.Errorf("failed to encode transfers: %w", err)
	}

	query := `
		INSERT INTO settlement_snapshots (settlement_id, algorithm_version, balances, transfers, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.querier.Exec(ctx, query,
		snap.SettlementID,
		snap.AlgorithmVersion,
		balances,
		transfers,
		snap.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create snapshot", "settlement_id", snap.SettlementID.String(), "error", err)
		return fmt.Errorf("failed to create snapshot: %w", err)
	}

	return nil
}

func (r *SnapshotRepository) GetBySettlementID(ctx context.Context, settlementID uuid.UUID) (*settlement.Snapshot, error) {
	query := `
		SELECT settlement_id, algorithm_version, balances, transfers, created_at
		FROM settlement_snapshots
		WHERE settlement_id = $1
	`

	var (
		snap      settlement.Snapshot
		balances  []byte
		transfers []byte
	)
	err := r.querier.QueryRow(ctx, query, settlementID).Scan(
		&snap.SettlementID,
		&snap.AlgorithmVersion,
		&balances,
		&transfers,
		&snap.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrSnapshotNotFound{SettlementID: settlementID}
		}
		r.logger.Error("Failed to get snapshot", "settlement_id", settlementID.String(), "error", err)
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	snap.CreatedAt = snap.CreatedAt.UTC()

	if err := json.Unmarshal(balances, &snap.Balances); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot balances: %w", err)
	}
	if err := json.Unmarshal(transfers, &snap.Transfers); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot transfers: %w", err)
	}

	return &snap, nil
}
